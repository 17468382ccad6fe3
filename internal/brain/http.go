package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aldrinstellus/ivrdemo/internal/reliability"
)

// HTTPAdapter forwards completion requests to a JSON HTTP endpoint. Retryable
// statuses are retried with exponential backoff.
type HTTPAdapter struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    reliability.Backoff
}

func NewHTTPAdapter(url string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		url:        strings.TrimSpace(url),
		client:     &http.Client{Timeout: timeout},
		maxRetries: 2,
		backoff:    reliability.Backoff{Base: 200 * time.Millisecond, Cap: 2 * time.Second},
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("brain http status %d: %s", e.code, e.body)
}

func (a *HTTPAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := a.post(ctx, payload)
		se, isStatus := err.(*statusError)
		if err == nil || !isStatus || !reliability.IsRetryableHTTPStatus(se.code) || attempt >= a.maxRetries {
			return resp, err
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(a.backoff.Delay(attempt)):
		}
	}
}

func (a *HTTPAdapter) post(ctx context.Context, payload []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, &statusError{code: res.StatusCode, body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	text := ""
	if err := json.Unmarshal(body, &obj); err != nil {
		text = strings.TrimSpace(string(body))
	} else {
		text = strings.TrimSpace(extractText(obj))
	}
	if text == "" {
		return Response{}, fmt.Errorf("brain returned an empty reply")
	}
	return Response{Text: text}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "message", "output", "reply"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
