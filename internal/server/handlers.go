package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pouncehq/onboard/internal/session"
	"github.com/pouncehq/onboard/pkg/models"
)

type startRequest struct {
	UserID string `json:"user_id"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type answerRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type answerResponse struct {
	Message           string         `json:"message"`
	IsComplete        bool           `json:"is_complete"`
	Degraded          bool           `json:"degraded,omitempty"`
	Profile           models.Profile `json:"profile,omitempty"`
	CompletionMessage string         `json:"completion_message,omitempty"`
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	Status       string         `json:"status"`
	Profile      models.Profile `json:"profile"`
	Messages     []messageView  `json:"messages"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := s.engine.Start(r.Context(), req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: res.SessionID, Message: res.Prompt})
}

func (s *Service) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	res, err := s.engine.SubmitAnswer(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{
		Message:           res.Reply,
		IsComplete:        res.IsComplete,
		Degraded:          res.Degraded,
		Profile:           res.Profile,
		CompletionMessage: res.CompletionMessage,
	})
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := s.engine.Get(r.Context(), sessionID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	msgs := make([]messageView, len(view.Messages))
	for i, m := range view.Messages {
		msgs[i] = messageView{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    view.Session.SessionID,
		UserID:       view.Session.UserID,
		Status:       string(view.Session.Status),
		Profile:      view.Session.Profile,
		Messages:     msgs,
		MessageCount: view.Session.MessageCount,
		CreatedAt:    view.Session.CreatedAt,
		CompletedAt:  view.Session.CompletedAt,
	})
}

func (s *Service) handleAbandon(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.engine.Abandon(r.Context(), sessionID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.SessionStatusAbandoned)})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// writeEngineError maps engine errors to HTTP statuses. Storage failures stay
// generic; details go to the log, not the client.
func (s *Service) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidState):
		writeError(w, http.StatusConflict, "session is already completed or abandoned")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
