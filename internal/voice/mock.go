package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
)

// MockFormat marks mock audio frames, which carry the UTF-8 text itself.
const MockFormat = "mock_text_bytes"

// MockProvider is a local fallback used when ElevenLabs is not configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) StartStream(ctx context.Context, _ string, _ string, _ TTSSettings) (TTSStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockTTSStream{events: make(chan TTSEvent, 128)}, nil
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || strings.TrimSpace(text) == "" {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	select {
	case s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: encoded, Format: MockFormat}:
	default:
	}
	return nil
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.events <- TTSEvent{Type: TTSEventFinal}:
	default:
	}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
