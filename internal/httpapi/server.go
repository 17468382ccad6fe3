package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aldrinstellus/ivrdemo/internal/calls"
	"github.com/aldrinstellus/ivrdemo/internal/config"
	"github.com/aldrinstellus/ivrdemo/internal/handoff"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/observability"
)

// Status describes which integrations the running service resolved to.
type Status struct {
	VoiceProvider  string
	VoiceDetail    string
	DefaultVoiceID string
	BrainMode      string
	BackendMode    string
	StoreMode      string
	EventsEnabled  bool
}

// Options wires a Server. Calls, Handoff and Metrics are required.
type Options struct {
	Config  config.Config
	Calls   *calls.Manager
	Handoff *handoff.Service
	Catalog *ivr.Catalog
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	Status  Status
	// PingInterval is how often call sockets are pinged. Zero means 30s.
	PingInterval time.Duration
}

type Server struct {
	cfg      config.Config
	calls    *calls.Manager
	handoff  *handoff.Service
	catalog  *ivr.Catalog
	metrics  *observability.Metrics
	log      zerolog.Logger
	status   Status
	upgrader websocket.Upgrader
	static   http.Handler
	ping     time.Duration
}

func New(opts Options) *Server {
	cfg := opts.Config
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &Server{
		ping:    ping,
		cfg:     cfg,
		calls:   opts.Calls,
		handoff: opts.Handoff,
		catalog: opts.Catalog,
		metrics: opts.Metrics,
		log:     opts.Logger,
		status:  opts.Status,
		static:  newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/voice/voices", s.handleListVoices)
	r.Get("/v1/voice/tones/{key}", s.handleToneWAV)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ivr-session", s.handleIVRSession)
		r.Get("/ivr-session/tokens/{code}", s.handleResumeToken)
		r.Get("/ivr-session/users/{userID}/messages", s.handleListMessages)
		r.Post("/chat", s.handleChat)
	})

	r.Route("/v1/ivr", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/calls", s.handleCreateCall)
		r.Route("/calls/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCall)
			r.Delete("/", s.handleDeleteCall)
			r.Post("/start", s.handleStartCall)
			r.Post("/digits", s.handlePressDigit)
			r.Post("/text", s.handleSubmitText)
			r.Post("/end", s.handleEndCall)
			r.Post("/reset", s.handleResetCall)
			r.Post("/audio", s.handleSetAudio)
			r.Get("/ws", s.handleCallWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.calls.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"backend_mode": s.status.BackendMode,
		"store_mode":   s.status.StoreMode,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Latency())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondControllerError(w http.ResponseWriter, err error) {
	status, code := controllerError(err)
	respondError(w, status, code, err.Error())
}

// controllerError maps call and controller sentinels to a status and code.
func controllerError(err error) (int, string) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, "call_not_found"
	case errors.Is(err, ivr.ErrInvalidDigit):
		return http.StatusBadRequest, "invalid_digit"
	case errors.Is(err, ivr.ErrEmptyText):
		return http.StatusBadRequest, "empty_text"
	case errors.Is(err, ivr.ErrCallActive):
		return http.StatusConflict, "call_active"
	case errors.Is(err, ivr.ErrCallInactive):
		return http.StatusConflict, "call_inactive"
	case errors.Is(err, ivr.ErrProcessing):
		return http.StatusConflict, "processing"
	case errors.Is(err, ivr.ErrClosed):
		return http.StatusConflict, "call_closed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
