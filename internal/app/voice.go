package app

import (
	"fmt"

	"github.com/aldrinstellus/ivrdemo/internal/config"
	"github.com/aldrinstellus/ivrdemo/internal/voice"
)

type voiceSetup struct {
	ttsProvider      voice.TTSProvider
	resolvedProvider string
	defaultVoiceID   string
	defaultModelID   string
	detail           string
}

func resolveVoiceProvider(cfg config.Config) (voiceSetup, error) {
	provider, name, err := voice.NewProvider(voice.ProviderConfig{
		Mode: cfg.VoiceProvider,
		ElevenLabs: voice.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			WSBaseURL:    cfg.ElevenLabsWSBaseURL,
			ModelID:      cfg.ElevenLabsModelID,
			OutputFormat: cfg.ElevenLabsOutputFormat,
		},
	})
	if err != nil {
		return voiceSetup{}, fmt.Errorf("voice provider init failed: %w", err)
	}

	setup := voiceSetup{
		ttsProvider:      provider,
		resolvedProvider: name,
	}
	switch name {
	case "elevenlabs":
		setup.defaultVoiceID = cfg.ElevenLabsVoiceID
		setup.defaultModelID = cfg.ElevenLabsModelID
		setup.detail = "elevenlabs stream-input (" + cfg.ElevenLabsOutputFormat + ")"
		if _, ok := provider.(*voice.FailoverProvider); ok {
			setup.detail += " with mock fallback"
		}
	default:
		setup.detail = "mock (transcript text only)"
	}
	return setup, nil
}
