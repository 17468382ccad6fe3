// Package events publishes transcript activity to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	TypeMessageLogged = "message_logged"
	TypeTokenIssued   = "token_issued"
)

// MessageLogged is published for every persisted transcript line.
type MessageLogged struct {
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"piiRedacted"`
	At          time.Time `json:"at"`
}

// TokenIssued is published when a transfer code is minted. The code itself
// resumes the transcript, so only a masked hint leaves the process.
type TokenIssued struct {
	UserID    string    `json:"userId"`
	CodeHint  string    `json:"codeHint"`
	Language  string    `json:"language"`
	Messages  int       `json:"messages"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CodeHint masks all but the last two characters of a transfer code.
func CodeHint(code string) string {
	r := []rune(code)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-2) + string(r[len(r)-2:])
}

// Recorder receives publish outcomes.
type Recorder interface {
	RecordPublish(topic, eventType string, err error, seconds float64)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Publisher writes transcript events to one topic, keyed by caller.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	log     zerolog.Logger
	rec     Recorder
}

// New creates a publisher. Disabled config or an empty broker list yields a
// log-only publisher.
func New(cfg Config, logger zerolog.Logger, rec Recorder) *Publisher {
	p := &Publisher{topic: cfg.Topic, log: logger, rec: rec}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("kafka publisher initialized")
	return p
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) PublishMessage(ctx context.Context, ev MessageLogged) error {
	return p.publish(ctx, TypeMessageLogged, ev.UserID, ev)
}

func (p *Publisher) PublishToken(ctx context.Context, ev TokenIssued) error {
	return p.publish(ctx, TypeTokenIssued, ev.UserID, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.log.Debug().
		Str("topic", p.topic).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("publishing event")

	if !p.enabled || p.writer == nil {
		p.record(eventType, nil, start)
		return nil
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	})
	p.record(eventType, err, start)
	return err
}

func (p *Publisher) record(eventType string, err error, start time.Time) {
	if p.rec != nil {
		p.rec.RecordPublish(p.topic, eventType, err, time.Since(start).Seconds())
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
