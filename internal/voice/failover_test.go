package voice

import (
	"context"
	"errors"
	"testing"
)

func TestFailoverProviderSwitchesToFallbackAndSticks(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary unavailable")

	primary := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			return nil, primaryErr
		},
	}
	fallback := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			return &stubTTSStream{}, nil
		},
	}

	p := NewFailoverProvider(primary, fallback, "")
	if _, err := p.StartStream(ctx, "x", "y", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if _, err := p.StartStream(ctx, "x", "y", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() on fallback unexpected error = %v", err)
	}

	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 2 {
		t.Fatalf("fallback calls = %d, want 2", fallback.calls)
	}
	if !p.FallbackActive() {
		t.Fatalf("FallbackActive() = false, want true")
	}
}

func TestFailoverProviderMapsFallbackVoice(t *testing.T) {
	var seenVoice, seenModel string
	primary := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	fallback := &stubTTSProvider{
		startStream: func(_ context.Context, voiceID, modelID string, _ TTSSettings) (TTSStream, error) {
			seenVoice = voiceID
			seenModel = modelID
			return &stubTTSStream{}, nil
		},
	}

	p := NewFailoverProvider(primary, fallback, " mock-en ")
	if _, err := p.StartStream(context.Background(), "eleven_voice", "eleven_model", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if seenVoice != "mock-en" {
		t.Fatalf("fallback voice = %q, want %q", seenVoice, "mock-en")
	}
	if seenModel != "eleven_model" {
		t.Fatalf("fallback model = %q, want %q", seenModel, "eleven_model")
	}
}

func TestFailoverProviderReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	ctx := context.Background()
	primaryUp := false
	fallbackUp := true

	primary := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			if !primaryUp {
				return nil, errors.New("primary down")
			}
			return &stubTTSStream{}, nil
		},
	}
	fallback := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			if !fallbackUp {
				return nil, errors.New("fallback down")
			}
			return &stubTTSStream{}, nil
		},
	}

	p := NewFailoverProvider(primary, fallback, "")
	if _, err := p.StartStream(ctx, "v", "m", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if !p.FallbackActive() {
		t.Fatalf("FallbackActive() = false after primary failure")
	}

	primaryUp, fallbackUp = true, false
	if _, err := p.StartStream(ctx, "v", "m", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if p.FallbackActive() {
		t.Fatalf("FallbackActive() = true after primary recovered")
	}
	if primary.calls != 2 || fallback.calls != 2 {
		t.Fatalf("calls = primary %d fallback %d, want 2 and 2", primary.calls, fallback.calls)
	}
}

func TestFailoverProviderReturnsCombinedErrorWhenBothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")

	primary := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			return nil, primaryErr
		},
	}
	fallback := &stubTTSProvider{
		startStream: func(context.Context, string, string, TTSSettings) (TTSStream, error) {
			return nil, fallbackErr
		},
	}

	p := NewFailoverProvider(primary, fallback, "")
	_, err := p.StartStream(context.Background(), "voice", "model", TTSSettings{})
	if err == nil {
		t.Fatalf("StartStream() expected error when both providers fail")
	}
	if !errors.Is(err, fallbackErr) {
		t.Fatalf("StartStream() error = %v, want wrapping %v", err, fallbackErr)
	}
	if p.FallbackActive() {
		t.Fatalf("FallbackActive() = true, want false when fallback never succeeded")
	}
}

type stubTTSProvider struct {
	calls       int
	startStream func(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error)
}

func (p *stubTTSProvider) StartStream(
	ctx context.Context,
	voiceID, modelID string,
	settings TTSSettings,
) (TTSStream, error) {
	p.calls++
	return p.startStream(ctx, voiceID, modelID, settings)
}

type stubTTSStream struct{}

func (s *stubTTSStream) SendText(context.Context, string, bool) error { return nil }
func (s *stubTTSStream) CloseInput(context.Context) error             { return nil }
func (s *stubTTSStream) Events() <-chan TTSEvent                      { return make(chan TTSEvent) }
func (s *stubTTSStream) Close() error                                 { return nil }
