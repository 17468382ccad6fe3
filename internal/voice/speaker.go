package voice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/protocol"
)

var (
	ErrSpeakerClosed = errors.New("speaker closed")
	ErrQueueFull     = errors.New("speech queue full")
)

// SpeakerConfig wires a Speaker.
type SpeakerConfig struct {
	CallID       string
	Provider     TTSProvider
	ProviderName string
	DefaultVoice string
	ModelID      string
	Settings     TTSSettings
	QueueSize    int
	Out          Publisher
	Logger       zerolog.Logger
	Recorder     Recorder
}

// Speaker plays utterances one at a time from a bounded queue.
type Speaker struct {
	cfg   SpeakerConfig
	queue chan job

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	epoch     uint64
	seq       uint64
	current   context.CancelFunc
	closed    bool
	closeOnce sync.Once
}

type job struct {
	id    string
	epoch uint64
	u     ivr.Utterance
}

var _ ivr.Speaker = (*Speaker)(nil)

// NewSpeaker starts the playback worker. Close stops it.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Provider == nil {
		cfg.Provider = NewMockProvider()
		cfg.ProviderName = "mock"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		cfg:    cfg,
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Speak enqueues an utterance and returns immediately.
func (s *Speaker) Speak(u ivr.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpeakerClosed
	}
	s.seq++
	j := job{id: s.cfg.CallID + "-" + strconv.FormatUint(s.seq, 10), epoch: s.epoch, u: u}
	select {
	case s.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the current utterance and discards everything queued.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.epoch++
	if s.current != nil {
		s.current()
	}
	for drained := false; !drained; {
		select {
		case <-s.queue:
		default:
			drained = true
		}
	}
	s.mu.Unlock()

	s.cfg.Out.Publish(protocol.SpeechStopped{
		Type:   protocol.TypeSpeechStopped,
		CallID: s.cfg.CallID,
		Reason: "stopped",
	})
}

// Close stops playback and waits for the worker to exit.
func (s *Speaker) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		<-s.done
	})
}

func (s *Speaker) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.queue:
			s.play(j)
		}
	}
}

func (s *Speaker) play(j job) {
	s.mu.Lock()
	if j.epoch != s.epoch || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.current = cancel
	s.mu.Unlock()

	err := s.stream(ctx, j)

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	interrupted := ctx.Err() != nil
	cancel()

	if err != nil && !interrupted {
		s.cfg.Logger.Warn().Err(err).Str("utterance", j.id).Msg("speech synthesis failed")
		if s.cfg.Recorder != nil {
			s.cfg.Recorder.SpeechFailed(s.cfg.ProviderName)
		}
		s.cfg.Out.Publish(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    s.cfg.CallID,
			Code:      "speech_failed",
			Source:    "tts",
			Retryable: true,
			Detail:    err.Error(),
		})
	}
}

func (s *Speaker) stream(ctx context.Context, j job) error {
	text := speechText(j.u.Text)
	if text == "" {
		return nil
	}
	voiceID := j.u.VoiceID
	if voiceID == "" {
		voiceID = s.cfg.DefaultVoice
	}

	stream, err := s.cfg.Provider.StartStream(ctx, voiceID, s.cfg.ModelID, s.cfg.Settings)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	for _, chunk := range speechChunks(text) {
		if err := stream.SendText(ctx, chunk+" ", true); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	if err := stream.CloseInput(ctx); err != nil {
		return fmt.Errorf("close input: %w", err)
	}

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return errors.New("stream ended before final frame")
			}
			switch ev.Type {
			case TTSEventAudio:
				s.cfg.Out.Publish(protocol.SpeechAudio{
					Type:        protocol.TypeSpeechAudio,
					CallID:      s.cfg.CallID,
					UtteranceID: j.id,
					Seq:         seq,
					Format:      ev.Format,
					AudioBase64: ev.AudioBase64,
				})
				seq++
			case TTSEventFinal:
				s.cfg.Out.Publish(protocol.SpeechAudio{
					Type:        protocol.TypeSpeechAudio,
					CallID:      s.cfg.CallID,
					UtteranceID: j.id,
					Seq:         seq,
					Text:        j.u.Text,
					Final:       true,
				})
				return nil
			case TTSEventError:
				return fmt.Errorf("tts %s: %s", ev.Code, ev.Detail)
			}
		}
	}
}
