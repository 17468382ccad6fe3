package ivr

import (
	"errors"
	"time"
)

// Language identifies a supported caller language.
type Language string

const (
	LanguageEnglish       Language = "en"
	LanguageSpanish       Language = "es"
	LanguageHaitianCreole Language = "ht"
)

// MessageKind classifies transcript entries.
type MessageKind string

const (
	KindSystem    MessageKind = "system"
	KindUser      MessageKind = "user"
	KindAssistant MessageKind = "assistant"
)

// Phase is the position of the call in the phone tree.
type Phase string

const (
	PhaseIdle Phase = "idle"
	// PhaseConnecting is the short window between dialing and the greeting.
	// Keypad input is not yet accepted as a language choice.
	PhaseConnecting       Phase = "connecting"
	PhaseAwaitingLanguage Phase = "awaiting_language"
	PhaseMainMenu         Phase = "main_menu"
)

var (
	ErrCallActive   = errors.New("call already active")
	ErrCallInactive = errors.New("call is not active")
	ErrProcessing   = errors.New("request in progress")
	ErrInvalidDigit = errors.New("invalid digit")
	ErrEmptyText    = errors.New("text is empty")
	ErrClosed       = errors.New("controller closed")
)

// Message is one transcript entry.
type Message struct {
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// Session is a point-in-time copy of one simulated call.
type Session struct {
	Active            bool      `json:"active"`
	Phase             Phase     `json:"phase"`
	SelectedLanguage  Language  `json:"selected_language"`
	LanguageConfirmed bool      `json:"language_confirmed"`
	Transcript        []Message `json:"transcript"`
	Processing        bool      `json:"processing"`
	TransferCode      string    `json:"transfer_code,omitempty"`
	ExternalUserID    string    `json:"external_user_id,omitempty"`
	AudioEnabled      bool      `json:"audio_enabled"`
}

// TransferToken is a code that resumes the conversation in the web chat.
type TransferToken struct {
	Code       string    `json:"code"`
	Language   Language  `json:"language"`
	Transcript []Message `json:"transcript"`
}

// Utterance is a unit of text handed to the speech synthesizer.
type Utterance struct {
	Text     string
	Language Language
	Locale   string
	VoiceID  string
}

// EventType identifies controller notifications.
type EventType string

const (
	EventMessage EventType = "message"
	EventState   EventType = "state"
)

// Event is emitted on every transcript append and state change.
type Event struct {
	Type    EventType
	Message Message
	Session Session
}

func cloneMessages(in []Message) []Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
