package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store for local use and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]MessageRecord
	tokens   map[string]TokenRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]MessageRecord),
		tokens:   make(map[string]TokenRecord),
	}
}

func (s *MemoryStore) AppendMessage(_ context.Context, record MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.messages[record.UserID] = append(s.messages[record.UserID], record)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, userID string, limit int) ([]MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]MessageRecord, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, token TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.Code]; exists {
		return ErrDuplicateToken
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.Transcript = append([]Entry(nil), token.Transcript...)
	s.tokens[token.Code] = token
	return nil
}

func (s *MemoryStore) Token(_ context.Context, code string) (TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[code]
	if !ok {
		return TokenRecord{}, ErrNotFound
	}
	t.Transcript = append([]Entry(nil), t.Transcript...)
	return t, nil
}

func (s *MemoryStore) Close() error { return nil }
