// Package store persists the caller message log and transfer tokens.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateToken = errors.New("token already exists")
)

// MessageRecord is one logged transcript line.
type MessageRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry is a role/content pair inside a stored transcript.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenRecord is a minted transfer code and the conversation it resumes.
type TokenRecord struct {
	Code       string    `json:"code"`
	UserID     string    `json:"user_id"`
	Language   string    `json:"language"`
	Transcript []Entry   `json:"transcript"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Store persists message logs and transfer tokens.
type Store interface {
	AppendMessage(ctx context.Context, record MessageRecord) error
	// Messages returns up to limit of the most recent records in chronological order.
	Messages(ctx context.Context, userID string, limit int) ([]MessageRecord, error)
	SaveToken(ctx context.Context, token TokenRecord) error
	Token(ctx context.Context, code string) (TokenRecord, error)
	Close() error
}
