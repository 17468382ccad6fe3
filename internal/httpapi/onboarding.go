package httpapi

import (
	"fmt"
	"net/http"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	VoiceProvider string            `json:"voice_provider"`
	BrainProvider string            `json:"brain_provider"`
	BackendMode   string            `json:"backend_mode"`
	StoreMode     string            `json:"store_mode"`
	EventsEnabled bool              `json:"events_enabled"`
	Checks        []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	voiceProvider := strings.TrimSpace(s.status.VoiceProvider)
	if voiceProvider == "" {
		voiceProvider = "mock"
	}
	brainProvider, brainChecks := s.brainChecks()

	checks := make([]onboardingCheck, 0, 8)
	voiceCheck := onboardingCheck{
		ID:     "voice_provider",
		Status: "ok",
		Label:  "Speech synthesis",
		Detail: s.status.VoiceDetail,
	}
	if voiceProvider == "mock" {
		voiceCheck.Status = "warn"
		voiceCheck.Fix = "Set ELEVENLABS_API_KEY to hear prompts spoken aloud."
	}
	checks = append(checks, voiceCheck)
	checks = append(checks, brainChecks...)

	switch s.status.BackendMode {
	case "remote":
		checks = append(checks, onboardingCheck{
			ID:     "backend",
			Status: "ok",
			Label:  "Backend API",
			Detail: "calls use " + s.cfg.BackendURL,
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "backend",
			Status: "ok",
			Label:  "Backend API",
			Detail: "in-process (served at /api)",
		})
	}

	storeCheck := onboardingCheck{
		ID:     "store",
		Status: "ok",
		Label:  "Message log and transfer codes",
		Detail: s.status.StoreMode,
	}
	if s.status.StoreMode != "postgres" {
		storeCheck.Status = "warn"
		storeCheck.Detail = "in-memory (lost on restart)"
		storeCheck.Fix = "Set DATABASE_URL so transfer codes survive restarts."
	}
	checks = append(checks, storeCheck)

	eventsCheck := onboardingCheck{
		ID:     "events",
		Status: "ok",
		Label:  "Transcript events",
		Detail: fmt.Sprintf("kafka topic %s", s.cfg.KafkaTopicTranscript),
	}
	if !s.status.EventsEnabled {
		eventsCheck.Detail = "log-only"
	}
	checks = append(checks, eventsCheck)

	if s.catalog != nil {
		checks = append(checks, onboardingCheck{
			ID:     "languages",
			Status: "ok",
			Label:  "Language bundles",
			Detail: fmt.Sprintf("%d languages, default %s", len(s.catalog.Languages), s.catalog.DefaultLanguage),
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		VoiceProvider: voiceProvider,
		BrainProvider: brainProvider,
		BackendMode:   s.status.BackendMode,
		StoreMode:     s.status.StoreMode,
		EventsEnabled: s.status.EventsEnabled,
		Checks:        checks,
	})
}

func (s *Server) brainChecks() (string, []onboardingCheck) {
	mode := strings.ToLower(strings.TrimSpace(s.status.BrainMode))
	if mode == "" {
		mode = "auto"
	}
	hasURL := strings.TrimSpace(s.cfg.BrainHTTPURL) != ""

	switch {
	case mode == "mock" || (mode == "auto" && !hasURL):
		return "mock", []onboardingCheck{{
			ID:     "brain",
			Status: "warn",
			Label:  "Chat brain",
			Detail: "mock replies",
			Fix:    "Set BRAIN_HTTP_URL to answer free-text turns with a real model.",
		}}
	case mode == "auto":
		return "http", []onboardingCheck{{
			ID:     "brain",
			Status: "ok",
			Label:  "Chat brain",
			Detail: s.cfg.BrainHTTPURL + " (mock fallback)",
		}}
	default:
		return mode, []onboardingCheck{{
			ID:     "brain",
			Status: "ok",
			Label:  "Chat brain",
			Detail: s.cfg.BrainHTTPURL,
		}}
	}
}
