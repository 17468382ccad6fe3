package ivr

import "context"

// TonePlayer plays a DTMF tone. Implementations must not block.
type TonePlayer interface {
	PlayTone(digit string)
}

// Speaker synthesizes speech. Speak enqueues and returns; Stop halts playback
// and discards anything queued.
type Speaker interface {
	Speak(u Utterance) error
	Stop()
}

// ChatMessage is the role/content pair sent to the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenRequest asks the backend to mint a transfer code.
type TokenRequest struct {
	UserID   string
	Messages []ChatMessage
	Language Language
}

// ChatRequest forwards a free-text turn to the backend.
type ChatRequest struct {
	SessionID string
	Messages  []ChatMessage
	Language  Language
}

// Backend is the session log, token and chat API the controller depends on.
type Backend interface {
	AddMessage(ctx context.Context, userID string, role MessageKind, content string) error
	GenerateToken(ctx context.Context, req TokenRequest) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

type noopTones struct{}

func (noopTones) PlayTone(string) {}

type noopSpeaker struct{}

func (noopSpeaker) Speak(Utterance) error { return nil }
func (noopSpeaker) Stop()                 {}
