package voice

import (
	"fmt"
	"strings"
)

// ProviderConfig selects and configures the speech synthesizer.
type ProviderConfig struct {
	Mode       string // auto, elevenlabs, mock
	ElevenLabs ElevenLabsConfig
}

// NewProvider returns the configured TTS provider and its name for metrics.
// Auto mode uses ElevenLabs with a mock fallback when an API key is present.
func NewProvider(cfg ProviderConfig) (TTSProvider, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	hasKey := strings.TrimSpace(cfg.ElevenLabs.APIKey) != ""

	switch mode {
	case "auto":
		if hasKey {
			return NewFailoverProvider(NewElevenLabsProvider(cfg.ElevenLabs), NewMockProvider(), ""), "elevenlabs", nil
		}
		return NewMockProvider(), "mock", nil
	case "elevenlabs":
		if !hasKey {
			return nil, "", fmt.Errorf("ELEVENLABS_API_KEY is required for elevenlabs voice provider")
		}
		return NewElevenLabsProvider(cfg.ElevenLabs), "elevenlabs", nil
	case "mock":
		return NewMockProvider(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported voice provider %q", cfg.Mode)
	}
}
