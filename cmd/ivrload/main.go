package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aldrinstellus/ivrdemo/internal/audio"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/protocol"
)

type options struct {
	baseURL     string
	calls       int
	concurrency int
	languageKey string
	text        string
	stepTimeout time.Duration
	verbose     bool
}

type createCallResponse struct {
	CallID string `json:"call_id"`
}

// wsEnvelope is the union of the server message fields the replay inspects.
type wsEnvelope struct {
	Type        string      `json:"type"`
	Kind        string      `json:"kind,omitempty"`
	Text        string      `json:"text,omitempty"`
	Code        string      `json:"code,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
	Session     ivr.Session `json:"session"`
}

// Steps timed per call, in replay order.
const (
	stepGreeting = "greeting"
	stepLanguage = "language_menu"
	stepChat     = "chat_reply"
	stepTransfer = "transfer_code"
	stepGoodbye  = "goodbye"
)

var stepOrder = []string{stepGreeting, stepLanguage, stepChat, stepTransfer, stepGoodbye}

type results struct {
	mu        sync.Mutex
	durations map[string][]time.Duration
	tones     int
	badTones  int
	failed    int
}

func (r *results) observe(step string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.durations == nil {
		r.durations = make(map[string][]time.Duration)
	}
	r.durations[step] = append(r.durations[step], d)
}

func (r *results) tone(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tones++
	if !ok {
		r.badTones++
	}
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivrload: %v\n", err)
		os.Exit(2)
	}
	res, err := run(context.Background(), cfg)
	if res != nil {
		printSummary(os.Stdout, res)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivrload: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "IVR demo service base URL")
	flag.IntVar(&cfg.calls, "calls", 10, "number of calls to replay")
	flag.IntVar(&cfg.concurrency, "concurrency", 4, "calls in flight at once")
	flag.StringVar(&cfg.languageKey, "language-key", "1", "key pressed at the language prompt")
	flag.StringVar(&cfg.text, "text", "What are your opening hours?", "free-text turn sent from the main menu")
	flag.DurationVar(&cfg.stepTimeout, "step-timeout", 20*time.Second, "timeout for each replay step")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.calls <= 0 {
		return options{}, fmt.Errorf("calls must be > 0")
	}
	if cfg.concurrency <= 0 {
		return options{}, fmt.Errorf("concurrency must be > 0")
	}
	if len(cfg.languageKey) != 1 {
		return options{}, fmt.Errorf("language-key must be a single key")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options) (*results, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	res := &results{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i := 0; i < cfg.calls; i++ {
		n := i + 1
		g.Go(func() error {
			if err := replayCall(gctx, client, cfg, res); err != nil {
				res.mu.Lock()
				res.failed++
				res.mu.Unlock()
				return fmt.Errorf("call %d: %w", n, err)
			}
			if cfg.verbose {
				fmt.Fprintf(os.Stderr, "ivrload: call %d done\n", n)
			}
			return nil
		})
	}
	return res, g.Wait()
}

func replayCall(ctx context.Context, client *http.Client, cfg options, res *results) error {
	callID, err := createCall(ctx, client, cfg.baseURL)
	if err != nil {
		return err
	}
	defer func() { _ = deleteCall(client, cfg.baseURL, callID) }()

	wsURL, err := wsURLForCall(cfg.baseURL, callID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	msgs := make(chan wsEnvelope, 256)
	readErr := make(chan error, 1)
	go readLoop(conn, msgs, readErr, res, cfg.verbose)

	steps := []struct {
		name  string
		send  any
		match func(wsEnvelope) bool
	}{
		{
			name: stepGreeting,
			send: protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStart},
			match: func(m wsEnvelope) bool {
				return m.Type == string(protocol.TypeCallState) && m.Session.Phase == ivr.PhaseAwaitingLanguage
			},
		},
		{
			name:  stepLanguage,
			send:  protocol.ClientDigit{Type: protocol.TypeClientDigit, Digit: cfg.languageKey},
			match: isAssistantLine,
		},
		{
			name:  stepChat,
			send:  protocol.ClientText{Type: protocol.TypeClientText, Text: cfg.text},
			match: isAssistantLine,
		},
		{
			name: stepTransfer,
			send: protocol.ClientDigit{Type: protocol.TypeClientDigit, Digit: "2"},
			match: func(m wsEnvelope) bool {
				return m.Type == string(protocol.TypeCallState) && m.Session.TransferCode != ""
			},
		},
		{
			name: stepGoodbye,
			send: protocol.ClientDigit{Type: protocol.TypeClientDigit, Digit: "0"},
			match: func(m wsEnvelope) bool {
				return m.Type == string(protocol.TypeCallState) && !m.Session.Active
			},
		},
	}

	for _, step := range steps {
		start := time.Now()
		if err := conn.WriteJSON(step.send); err != nil {
			return fmt.Errorf("%s: write: %w", step.name, err)
		}
		if err := await(msgs, readErr, step.match, cfg.stepTimeout); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		res.observe(step.name, time.Since(start))
	}
	return nil
}

func isAssistantLine(m wsEnvelope) bool {
	return m.Type == string(protocol.TypeTranscriptMessage) && m.Kind == string(ivr.KindAssistant)
}

func createCall(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/ivr/calls", bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("create call status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.CallID == "" {
		return "", fmt.Errorf("create call returned empty call_id")
	}
	return out.CallID, nil
}

func deleteCall(client *http.Client, baseURL, callID string) error {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/v1/ivr/calls/"+url.PathEscape(callID), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func wsURLForCall(baseURL, callID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ivr/calls/" + url.PathEscape(callID) + "/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, msgs chan<- wsEnvelope, readErr chan<- error, res *results, verbose bool) {
	defer close(msgs)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeToneAudio):
			res.tone(validTone(env.AudioBase64))
			continue
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "ivrload: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
		select {
		case msgs <- env:
		default:
		}
	}
}

// validTone reports whether a tone frame decodes to narrowband PCM.
func validTone(b64 string) bool {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return false
	}
	pcm, rate, err := audio.DecodeWAV(raw)
	return err == nil && rate == audio.DefaultSampleRate && len(pcm) > 0
}

func await(msgs <-chan wsEnvelope, readErr <-chan error, match func(wsEnvelope) bool, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return fmt.Errorf("connection closed")
				}
			}
			if match(m) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func printSummary(w io.Writer, res *results) {
	res.mu.Lock()
	defer res.mu.Unlock()
	fmt.Fprintf(w, "%-14s %7s %9s %9s %9s\n", "step", "samples", "p50_ms", "p95_ms", "max_ms")
	for _, step := range stepOrder {
		ds := res.durations[step]
		if len(ds) == 0 {
			continue
		}
		p50, p95, maxMS := summarize(ds)
		fmt.Fprintf(w, "%-14s %7d %9.1f %9.1f %9.1f\n", step, len(ds), p50, p95, maxMS)
	}
	fmt.Fprintf(w, "tones: %d (%d invalid)  failed calls: %d\n", res.tones, res.badTones, res.failed)
}

// summarize returns nearest-rank p50, p95 and max in milliseconds.
func summarize(ds []time.Duration) (p50, p95, maxMS float64) {
	ms := make([]float64, len(ds))
	for i, d := range ds {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(ms)
	rank := func(q float64) float64 {
		idx := int(math.Ceil(q*float64(len(ms)))) - 1
		if idx < 0 {
			idx = 0
		}
		return ms[idx]
	}
	return rank(0.50), rank(0.95), ms[len(ms)-1]
}
