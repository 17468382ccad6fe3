package voice

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// FailoverProvider prefers the primary TTS backend and switches to the
// fallback when stream startup fails. Once the fallback succeeds it stays
// active until it fails; then the primary is retried.
type FailoverProvider struct {
	primary         TTSProvider
	fallback        TTSProvider
	fallbackVoiceID string
	fallbackActive  atomic.Bool
}

func NewFailoverProvider(primary, fallback TTSProvider, fallbackVoiceID string) *FailoverProvider {
	return &FailoverProvider{
		primary:         primary,
		fallback:        fallback,
		fallbackVoiceID: strings.TrimSpace(fallbackVoiceID),
	}
}

// FallbackActive reports whether the next stream goes to the fallback first.
func (p *FailoverProvider) FallbackActive() bool {
	return p.fallbackActive.Load()
}

func (p *FailoverProvider) StartStream(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error) {
	if p.fallbackActive.Load() {
		stream, fbErr := p.startFallback(ctx, voiceID, modelID, settings)
		if fbErr == nil {
			return stream, nil
		}
		stream, prErr := p.primary.StartStream(ctx, voiceID, modelID, settings)
		if prErr == nil {
			p.fallbackActive.Store(false)
			return stream, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	stream, prErr := p.primary.StartStream(ctx, voiceID, modelID, settings)
	if prErr == nil {
		return stream, nil
	}
	stream, fbErr := p.startFallback(ctx, voiceID, modelID, settings)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	p.fallbackActive.Store(true)
	return stream, nil
}

func (p *FailoverProvider) startFallback(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error) {
	if p.fallbackVoiceID != "" {
		voiceID = p.fallbackVoiceID
	}
	return p.fallback.StartStream(ctx, voiceID, modelID, settings)
}
