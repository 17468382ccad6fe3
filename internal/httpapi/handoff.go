package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aldrinstellus/ivrdemo/internal/backend"
	"github.com/aldrinstellus/ivrdemo/internal/brain"
	"github.com/aldrinstellus/ivrdemo/internal/handoff"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/store"
)

type tokenResumeResponse struct {
	Code      string        `json:"code"`
	UserID    string        `json:"userId"`
	Language  string        `json:"language"`
	Messages  []store.Entry `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func (s *Server) handleIVRSession(w http.ResponseWriter, r *http.Request) {
	var req backend.SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch req.Action {
	case backend.ActionAddMessage:
		if err := s.handoff.AddMessage(r.Context(), req.UserID, ivr.MessageKind(req.Role), req.Content); err != nil {
			s.respondHandoffError(w, "add-message", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	case backend.ActionGenerateToken:
		code, err := s.handoff.GenerateToken(r.Context(), ivr.TokenRequest{
			UserID:   req.UserID,
			Messages: req.Messages,
			Language: ivr.Language(req.Language),
		})
		if err != nil {
			s.respondHandoffError(w, "generate-token", err)
			return
		}
		respondJSON(w, http.StatusOK, backend.TokenResponse{Token: code})
	default:
		respondError(w, http.StatusBadRequest, "invalid_action", "unknown action "+strconv.Quote(req.Action))
	}
}

func (s *Server) handleResumeToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.handoff.ResumeToken(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondHandoffError(w, "resume-token", err)
		return
	}
	msgs := tok.Transcript
	if msgs == nil {
		msgs = []store.Entry{}
	}
	respondJSON(w, http.StatusOK, tokenResumeResponse{
		Code:      tok.Code,
		UserID:    tok.UserID,
		Language:  tok.Language,
		Messages:  msgs,
		CreatedAt: tok.CreatedAt,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	records, err := s.handoff.Messages(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.respondHandoffError(w, "list-messages", err)
		return
	}
	if records == nil {
		records = []store.MessageRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": records})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var (
		reply string
		err   error
	)
	if req.IsIVR {
		reply, err = s.handoff.Chat(r.Context(), ivr.ChatRequest{
			SessionID: req.SessionID,
			Messages:  req.Messages,
			Language:  ivr.Language(req.Language),
		})
	} else {
		msgs := make([]brain.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			msgs = append(msgs, brain.Message{Role: m.Role, Content: m.Content})
		}
		reply, err = s.handoff.Reply(r.Context(), brain.Request{
			SessionID: req.SessionID,
			Language:  req.Language,
			Messages:  msgs,
		})
	}
	if err != nil {
		s.respondHandoffError(w, "chat", err)
		return
	}
	respondJSON(w, http.StatusOK, backend.ChatResponse{Message: reply})
}

func (s *Server) respondHandoffError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, handoff.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, handoff.ErrTokenNotFound):
		respondError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, handoff.ErrTokenExpired):
		respondError(w, http.StatusGone, "token_expired", err.Error())
	case op == "chat":
		s.log.Warn().Err(err).Msg("chat turn failed")
		respondError(w, http.StatusBadGateway, "brain_unavailable", err.Error())
	default:
		s.log.Error().Err(err).Str("op", op).Msg("backend request failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
