// Package backend is the JSON/HTTP client for the session log, transfer
// token and chat endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/reliability"
)

const (
	ActionAddMessage    = "add-message"
	ActionGenerateToken = "generate-token"
)

// SessionRequest is the body of POST /ivr-session for both actions.
type SessionRequest struct {
	Action   string            `json:"action"`
	UserID   string            `json:"userId"`
	Role     string            `json:"role,omitempty"`
	Content  string            `json:"content,omitempty"`
	Messages []ivr.ChatMessage `json:"messages,omitempty"`
	Language string            `json:"language,omitempty"`
}

// TokenResponse is returned by the generate-token action.
type TokenResponse struct {
	Token string `json:"token"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages  []ivr.ChatMessage `json:"messages"`
	Language  string            `json:"language"`
	SessionID string            `json:"sessionId"`
	IsIVR     bool              `json:"isIVR"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

var (
	ErrEmptyToken = errors.New("backend returned an empty token")
	ErrEmptyReply = errors.New("backend returned an empty reply")
)

// Client talks to the backend API rooted at a base URL.
type Client struct {
	base   string
	client *http.Client
}

var _ ivr.Backend = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) AddMessage(ctx context.Context, userID string, role ivr.MessageKind, content string) error {
	return c.post(ctx, "/ivr-session", SessionRequest{
		Action:  ActionAddMessage,
		UserID:  userID,
		Role:    string(role),
		Content: content,
	}, nil)
}

func (c *Client) GenerateToken(ctx context.Context, req ivr.TokenRequest) (string, error) {
	var out TokenResponse
	err := c.post(ctx, "/ivr-session", SessionRequest{
		Action:   ActionGenerateToken,
		UserID:   req.UserID,
		Messages: req.Messages,
		Language: string(req.Language),
	}, &out)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(out.Token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

func (c *Client) Chat(ctx context.Context, req ivr.ChatRequest) (string, error) {
	var out ChatResponse
	err := c.post(ctx, "/chat", ChatRequest{
		Messages:  req.Messages,
		Language:  string(req.Language),
		SessionID: req.SessionID,
		IsIVR:     true,
	}, &out)
	if err != nil {
		return "", err
	}
	msg := strings.TrimSpace(out.Message)
	if msg == "" {
		return "", ErrEmptyReply
	}
	return msg, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{Endpoint: path, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
