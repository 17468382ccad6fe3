package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aldrinstellus/ivrdemo/internal/calls"
	"github.com/aldrinstellus/ivrdemo/internal/protocol"
)

type digitRequest struct {
	Digit string `json:"digit"`
}

type textRequest struct {
	Text string `json:"text"`
}

type audioRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.Create()
	if err != nil {
		s.log.Error().Err(err).Msg("create call failed")
		respondError(w, http.StatusInternalServerError, "call_create_failed", err.Error())
		return
	}
	if r.URL.Query().Get("start") == "true" {
		if err := call.Controller.StartCall(); err != nil {
			respondControllerError(w, err)
			return
		}
	}
	s.respondCall(w, http.StatusCreated, call.ID)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	info, err := s.calls.Info(chi.URLParam(r, "id"))
	if err != nil {
		respondControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteCall(w http.ResponseWriter, r *http.Request) {
	info, err := s.calls.Remove(chi.URLParam(r, "id"))
	if err != nil {
		respondControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	s.withCall(w, r, func(call *calls.Call) error {
		return call.Controller.StartCall()
	})
}

func (s *Server) handlePressDigit(w http.ResponseWriter, r *http.Request) {
	var req digitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.withCall(w, r, func(call *calls.Call) error {
		return call.Controller.PressDigit(strings.TrimSpace(req.Digit))
	})
}

func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.withCall(w, r, func(call *calls.Call) error {
		return call.Controller.SubmitText(req.Text)
	})
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	s.withCall(w, r, func(call *calls.Call) error {
		return call.Controller.EndCall()
	})
}

func (s *Server) handleResetCall(w http.ResponseWriter, r *http.Request) {
	s.withCall(w, r, func(call *calls.Call) error {
		call.Controller.ResetDemo()
		return nil
	})
}

func (s *Server) handleSetAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"enabled\": true|false}")
		return
	}
	s.withCall(w, r, func(call *calls.Call) error {
		call.Controller.SetAudioEnabled(*req.Enabled)
		return nil
	})
}

// withCall touches the call, runs fn and answers with the updated call info.
func (s *Server) withCall(w http.ResponseWriter, r *http.Request, fn func(*calls.Call) error) {
	call, err := s.calls.Touch(chi.URLParam(r, "id"))
	if err != nil {
		respondControllerError(w, err)
		return
	}
	if err := fn(call); err != nil {
		respondControllerError(w, err)
		return
	}
	s.respondCall(w, http.StatusOK, call.ID)
}

func (s *Server) respondCall(w http.ResponseWriter, status int, id string) {
	info, err := s.calls.Info(id)
	if err != nil {
		respondControllerError(w, err)
		return
	}
	respondJSON(w, status, info)
}

func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "id")
	call, err := s.calls.Touch(callID)
	if err != nil {
		respondControllerError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.CallEvents.WithLabelValues("ws_connected").Inc()
	log := s.log.With().Str("callId", callID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := call.Hub.Subscribe(256)
	defer unsubscribe()

	// Replies that only concern this connection bypass the hub.
	direct := make(chan any, 16)
	direct <- protocol.CallState{Type: protocol.TypeCallState, CallID: callID, Session: call.Controller.Snapshot()}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing unblocks the read loop when the call goes away.
		defer conn.Close()
		ticker := time.NewTicker(s.ping)
		defer ticker.Stop()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					log.Debug().Err(err).Msg("websocket ping failed")
					cancel()
					return
				}
				continue
			case m, ok := <-events:
				if !ok {
					cancel()
					return
				}
				msg = m
			case m := <-direct:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		// An open page keeps its call alive.
		_, _ = s.calls.Touch(callID)
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if _, err := s.calls.Touch(callID); err != nil {
			break
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err == nil {
			if t, ok := messageTypeOf(parsed); ok {
				s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
			}
			err = s.dispatch(call, parsed)
		}
		if err != nil {
			select {
			case direct <- wsError(callID, err):
			default:
				s.metrics.WSMessages.WithLabelValues("outbound", "drop_full").Inc()
			}
		}
	}

	cancel()
	<-writerDone
	s.metrics.CallEvents.WithLabelValues("ws_disconnected").Inc()
}

func (s *Server) dispatch(call *calls.Call, msg any) error {
	ctrl := call.Controller
	switch m := msg.(type) {
	case protocol.ClientDigit:
		return ctrl.PressDigit(m.Digit)
	case protocol.ClientText:
		return ctrl.SubmitText(m.Text)
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionStart:
			return ctrl.StartCall()
		case protocol.ActionEnd:
			return ctrl.EndCall()
		case protocol.ActionReset:
			ctrl.ResetDemo()
		case protocol.ActionAudioOn:
			ctrl.SetAudioEnabled(true)
		case protocol.ActionAudioOff:
			ctrl.SetAudioEnabled(false)
		}
	}
	return nil
}

func wsError(callID string, err error) protocol.ErrorEvent {
	_, code := controllerError(err)
	if code == "internal" {
		code = "invalid_client_message"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		CallID:    callID,
		Code:      code,
		Source:    "gateway",
		Retryable: false,
		Detail:    err.Error(),
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientDigit:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TranscriptMessage:
		return m.Type, true
	case protocol.CallState:
		return m.Type, true
	case protocol.ToneAudio:
		return m.Type, true
	case protocol.SpeechAudio:
		return m.Type, true
	case protocol.SpeechStopped:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
