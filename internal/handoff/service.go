// Package handoff serves the session log, transfer token and chat endpoints
// that phone calls use to hand a conversation over to the web chat.
package handoff

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/brain"
	"github.com/aldrinstellus/ivrdemo/internal/events"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/policy"
	"github.com/aldrinstellus/ivrdemo/internal/store"
)

// CodeAlphabet omits characters that are easy to confuse when read aloud or
// typed (I, L, O, 0, 1).
const CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	CodeLength        = 6
	maxCodeAttempts   = 8
	ivrReplySentences = 2
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTokenNotFound  = errors.New("transfer token not found")
	ErrTokenExpired   = errors.New("transfer token expired")
)

// Publisher receives transcript activity.
type Publisher interface {
	PublishMessage(ctx context.Context, ev events.MessageLogged) error
	PublishToken(ctx context.Context, ev events.TokenIssued) error
}

// Options wires a Service. Store and Brain are required.
type Options struct {
	Store     store.Store
	Brain     brain.Adapter
	Publisher Publisher
	TokenTTL  time.Duration
	Now       func() time.Time
	Random    io.Reader
	Logger    zerolog.Logger
}

// Service implements the backend API in process.
type Service struct {
	store store.Store
	brain brain.Adapter
	pub   Publisher
	ttl   time.Duration
	now   func() time.Time
	rand  io.Reader
	log   zerolog.Logger
}

var _ ivr.Backend = (*Service)(nil)

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("handoff: store is required")
	}
	if opts.Brain == nil {
		return nil, errors.New("handoff: brain is required")
	}
	s := &Service{
		store: opts.Store,
		brain: opts.Brain,
		pub:   opts.Publisher,
		ttl:   opts.TokenTTL,
		now:   opts.Now,
		rand:  opts.Random,
		log:   opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	return s, nil
}

// AddMessage appends one transcript line to the caller's log.
func (s *Service) AddMessage(ctx context.Context, userID string, role ivr.MessageKind, content string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if !validRole(string(role)) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}

	redacted, changed := policy.RedactPII(content)
	rec := store.MessageRecord{
		UserID:      userID,
		Role:        string(role),
		Content:     redacted,
		PIIRedacted: changed,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, rec); err != nil {
		return err
	}
	s.publish(func(pub Publisher) error {
		return pub.PublishMessage(ctx, events.MessageLogged{
			UserID:      rec.UserID,
			Role:        rec.Role,
			Content:     rec.Content,
			PIIRedacted: rec.PIIRedacted,
			At:          rec.CreatedAt,
		})
	})
	return nil
}

// GenerateToken mints a transfer code bound to the conversation so far.
func (s *Service) GenerateToken(ctx context.Context, req ivr.TokenRequest) (string, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	lang := strings.TrimSpace(string(req.Language))
	if lang == "" {
		lang = string(ivr.LanguageEnglish)
	}

	transcript := make([]store.Entry, 0, len(req.Messages))
	for _, m := range req.Messages {
		content, _ := policy.RedactPII(m.Content)
		transcript = append(transcript, store.Entry{Role: m.Role, Content: content})
	}

	now := s.now().UTC()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		tok := store.TokenRecord{
			Code:       code,
			UserID:     userID,
			Language:   lang,
			Transcript: transcript,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		err = s.store.SaveToken(ctx, tok)
		if errors.Is(err, store.ErrDuplicateToken) {
			s.log.Debug().Int("attempt", attempt+1).Msg("transfer code collision, retrying")
			continue
		}
		if err != nil {
			return "", err
		}
		s.publish(func(pub Publisher) error {
			return pub.PublishToken(ctx, events.TokenIssued{
				UserID:    userID,
				CodeHint:  events.CodeHint(code),
				Language:  lang,
				Messages:  len(transcript),
				ExpiresAt: tok.ExpiresAt,
			})
		})
		s.log.Info().Str("userId", userID).Str("language", lang).Msg("transfer code issued")
		return code, nil
	}
	return "", fmt.Errorf("generate code: %d collisions in a row", maxCodeAttempts)
}

// ResumeToken looks up a transfer code. Spacing, dashes and letter case are
// ignored.
func (s *Service) ResumeToken(ctx context.Context, code string) (store.TokenRecord, error) {
	code = NormalizeCode(code)
	if code == "" {
		return store.TokenRecord{}, ErrTokenNotFound
	}
	tok, err := s.store.Token(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return store.TokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return store.TokenRecord{}, err
	}
	if tok.Expired(s.now()) {
		return store.TokenRecord{}, ErrTokenExpired
	}
	return tok, nil
}

// Chat answers a phone caller. Replies are clipped for playback.
func (s *Service) Chat(ctx context.Context, req ivr.ChatRequest) (string, error) {
	msgs := make([]brain.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, brain.Message{Role: m.Role, Content: m.Content})
	}
	return s.Reply(ctx, brain.Request{
		SessionID: req.SessionID,
		Language:  string(req.Language),
		Messages:  msgs,
		IVR:       true,
	})
}

// Reply runs one chat turn through the brain.
func (s *Service) Reply(ctx context.Context, req brain.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: messages are required", ErrInvalidRequest)
	}
	if req.Language == "" {
		req.Language = string(ivr.LanguageEnglish)
	}
	resp, err := s.brain.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("brain: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if req.IVR {
		text = FirstSentences(text, ivrReplySentences)
	}
	if text == "" {
		return "", errors.New("brain returned an empty reply")
	}
	return text, nil
}

// Messages returns the most recent log lines for a caller, oldest first.
func (s *Service) Messages(ctx context.Context, userID string, limit int) ([]store.MessageRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Messages(ctx, userID, limit)
}

func (s *Service) publish(fn func(Publisher) error) {
	if s.pub == nil {
		return
	}
	if err := fn(s.pub); err != nil {
		s.log.Warn().Err(err).Msg("publish transcript event failed")
	}
}

func (s *Service) newCode() (string, error) {
	// Rejection sampling keeps the distribution uniform over the alphabet.
	limit := byte(256 - 256%len(CodeAlphabet))
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(s.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode uppercases a code and strips separators.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)
}

// FirstSentences returns at most n sentences of text.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || text == "" {
		return text
	}
	count := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}
	return text
}

func validRole(role string) bool {
	switch ivr.MessageKind(role) {
	case ivr.KindSystem, ivr.KindUser, ivr.KindAssistant:
		return true
	}
	return false
}
