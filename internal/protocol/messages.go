package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aldrinstellus/ivrdemo/internal/ivr"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientDigit   MessageType = "client_digit"
	TypeClientText    MessageType = "client_text"
	TypeClientControl MessageType = "client_control"

	TypeTranscriptMessage MessageType = "transcript_message"
	TypeCallState         MessageType = "call_state"
	TypeToneAudio         MessageType = "tone_audio"
	TypeSpeechAudio       MessageType = "speech_audio"
	TypeSpeechStopped     MessageType = "speech_stopped"
	TypeErrorEvent        MessageType = "error_event"
)

// Control actions accepted in client_control.
const (
	ActionStart    = "start"
	ActionEnd      = "end"
	ActionReset    = "reset"
	ActionAudioOn  = "audio_on"
	ActionAudioOff = "audio_off"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientDigit struct {
	Type  MessageType `json:"type"`
	Digit string      `json:"digit"`
}

type ClientText struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type TranscriptMessage struct {
	Type   MessageType     `json:"type"`
	CallID string          `json:"call_id"`
	Kind   ivr.MessageKind `json:"kind"`
	Text   string          `json:"text"`
	TSMs   int64           `json:"ts_ms"`
}

type CallState struct {
	Type    MessageType `json:"type"`
	CallID  string      `json:"call_id"`
	Session ivr.Session `json:"session"`
}

type ToneAudio struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	Digit       string      `json:"digit"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type SpeechAudio struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	UtteranceID string      `json:"utterance_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
	Text        string      `json:"text,omitempty"`
	Final       bool        `json:"final"`
}

type SpeechStopped struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// NewTranscriptMessage converts a controller transcript entry.
func NewTranscriptMessage(callID string, m ivr.Message) TranscriptMessage {
	return TranscriptMessage{
		Type:   TypeTranscriptMessage,
		CallID: callID,
		Kind:   m.Kind,
		Text:   m.Text,
		TSMs:   m.Timestamp.UnixMilli(),
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientDigit:
		var msg ClientDigit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Digit) != 1 {
			return nil, errors.New("invalid client_digit")
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStart, ActionEnd, ActionReset, ActionAudioOn, ActionAudioOff:
			return msg, nil
		}
		return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
	default:
		return nil, ErrUnsupportedType
	}
}
