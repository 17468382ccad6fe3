// Package voice renders what the caller hears: keypad tones and synthesized
// speech, both published as audio frames to the call's listeners.
package voice

import "context"

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Format      string
	Code        string
	Detail      string
	Retryable   bool
}

type TTSSettings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

type TTSStream interface {
	SendText(ctx context.Context, text string, tryTrigger bool) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

type TTSProvider interface {
	StartStream(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error)
}

// Publisher delivers server messages to whoever is listening to the call.
// Publish must not block.
type Publisher interface {
	Publish(msg any)
}

// Recorder receives synthesis failures.
type Recorder interface {
	SpeechFailed(provider string)
}
