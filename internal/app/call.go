package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/calls"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/logging"
	"github.com/aldrinstellus/ivrdemo/internal/observability"
	"github.com/aldrinstellus/ivrdemo/internal/voice"
)

// callDeps is shared by the controllers of all calls.
type callDeps struct {
	Catalog         *ivr.Catalog
	Backend         ivr.Backend
	Voice           voiceSetup
	Delays          ivr.Delays
	BackendTimeout  time.Duration
	SpeechQueueSize int
	Metrics         *observability.Metrics
	Logger          zerolog.Logger
}

// newCallBuilder wires one controller per call. Tones and speech are
// published to the call hub next to transcript and state events.
func newCallBuilder(d callDeps) calls.Builder {
	return func(callID string, hub *calls.Hub) (*ivr.Controller, func(), error) {
		log := logging.WithCall(d.Logger, callID, "")

		speaker := voice.NewSpeaker(voice.SpeakerConfig{
			CallID:       callID,
			Provider:     d.Voice.ttsProvider,
			ProviderName: d.Voice.resolvedProvider,
			DefaultVoice: d.Voice.defaultVoiceID,
			ModelID:      d.Voice.defaultModelID,
			QueueSize:    d.SpeechQueueSize,
			Out:          hub,
			Logger:       log.With().Str("component", "speaker").Logger(),
			Recorder:     d.Metrics,
		})

		ctrl, err := ivr.NewController(ivr.Options{
			Catalog:        d.Catalog,
			Backend:        d.Backend,
			Tones:          voice.NewTonePlayer(callID, hub, log),
			Speaker:        speaker,
			Delays:         d.Delays,
			BackendTimeout: d.BackendTimeout,
			Logger:         &log,
			Recorder:       d.Metrics,
			OnEvent:        calls.EventPublisher(callID, hub),
		})
		if err != nil {
			speaker.Close()
			return nil, nil, err
		}

		d.Metrics.ActiveCalls.Inc()
		d.Metrics.CallEvents.WithLabelValues("created").Inc()
		cleanup := func() {
			speaker.Close()
			d.Metrics.ActiveCalls.Dec()
			d.Metrics.CallEvents.WithLabelValues("closed").Inc()
		}
		return ctrl, cleanup, nil
	}
}

func loadCatalog(path string) (*ivr.Catalog, error) {
	if path == "" {
		return ivr.DefaultCatalog()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("IVR_BUNDLE_PATH %q does not exist", path)
	}
	catalog, err := ivr.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load bundles: %w", err)
	}
	return catalog, nil
}

func storeMode(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}
	return "postgres"
}
