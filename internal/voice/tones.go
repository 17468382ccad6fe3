package voice

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/audio"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/protocol"
)

const (
	toneDuration   = 150 * time.Millisecond
	toneSampleRate = audio.DefaultSampleRate
)

// TonePlayer publishes a rendered DTMF tone for each key press.
type TonePlayer struct {
	callID string
	out    Publisher
	log    zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
}

var _ ivr.TonePlayer = (*TonePlayer)(nil)

func NewTonePlayer(callID string, out Publisher, logger zerolog.Logger) *TonePlayer {
	return &TonePlayer{callID: callID, out: out, log: logger, cache: make(map[string]string)}
}

func (p *TonePlayer) PlayTone(digit string) {
	encoded, err := p.render(digit)
	if err != nil {
		p.log.Warn().Err(err).Str("digit", digit).Msg("dtmf render failed")
		return
	}
	p.out.Publish(protocol.ToneAudio{
		Type:        protocol.TypeToneAudio,
		CallID:      p.callID,
		Digit:       digit,
		Format:      "wav",
		AudioBase64: encoded,
	})
}

func (p *TonePlayer) render(digit string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.cache[digit]; ok {
		return s, nil
	}
	pcm, err := audio.Tone(digit, toneDuration, toneSampleRate)
	if err != nil {
		return "", err
	}
	wav, err := audio.EncodeWAV(pcm, toneSampleRate)
	if err != nil {
		return "", err
	}
	s := base64.StdEncoding.EncodeToString(wav)
	p.cache[digit] = s
	return s, nil
}
