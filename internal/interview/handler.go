// Package interview exposes the REST surface around a voice session: start
// and final summary.
package interview

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepview/voice-gateway/internal/backend"
	"github.com/prepview/voice-gateway/internal/config"
	"github.com/prepview/voice-gateway/internal/session"
)

const fallbackGreeting = "Hello, and welcome to your interview. To get us started, please tell me a little about yourself and your background."

// Handler serves the interview lifecycle endpoints
type Handler struct {
	cfg       *config.Config
	store     session.Store
	responder backend.Responder
	logger    zerolog.Logger
}

// NewHandler wires the interview endpoints
func NewHandler(cfg *config.Config, store session.Store, responder backend.Responder, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		responder: responder,
		logger:    logger,
	}
}

type startRequest struct {
	CompanyContext json.RawMessage `json:"companyContext"`
	MaxTurns       int             `json:"maxTurns"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
	Greeting  string `json:"greeting"`
	MaxTurns  int    `json:"maxTurns"`
}

type summaryRequest struct {
	SessionID string `json:"sessionId"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// Start creates a session and asks the backend for the opening question. A
// backend failure degrades to a fixed greeting rather than failing the start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if r.Body != nil {
		// an empty body means default context
		json.NewDecoder(r.Body).Decode(&req)
	}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = h.cfg.SessionMaxTurns
	}

	sessionID := uuid.New().String()
	greeting := fallbackGreeting
	var token string

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.cfg.BackendTimeout)*time.Second)
	defer cancel()

	text, newToken, err := h.responder.Respond(ctx, backend.BuildStartPrompt(string(req.CompanyContext)), "")
	if err != nil {
		h.logger.Warn().Err(err).Msg("Backend unavailable for opening question, using fallback greeting")
	} else if cleaned := backend.CleanResponse(text); cleaned != "" {
		greeting = cleaned
		token = newToken
	}

	h.store.Create(&session.Session{
		ID:                sessionID,
		MaxTurns:          maxTurns,
		ContinuationToken: token,
		CompanyContext:    req.CompanyContext,
		Transcript: []session.Entry{
			{Speaker: session.SpeakerInterviewer, Text: greeting},
		},
	})

	h.logger.Info().Str("session_id", sessionID).Int("max_turns", maxTurns).Msg("Interview started")
	writeJSON(w, http.StatusOK, startResponse{
		SessionID: sessionID,
		Greeting:  greeting,
		MaxTurns:  maxTurns,
	})
}

// Summary asks the backend for final feedback over the full transcript, then
// deletes the session.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, "sessionId required", http.StatusBadRequest)
		return
	}

	sess, err := h.store.Get(req.SessionID)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.cfg.BackendTimeout)*time.Second)
	defer cancel()

	text, _, err := h.responder.Respond(ctx, backend.BuildSummaryPrompt(sess.Transcript), sess.ContinuationToken)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to produce interview summary")
		http.Error(w, "summary unavailable", http.StatusBadGateway)
		return
	}

	h.store.Delete(req.SessionID)
	h.logger.Info().Str("session_id", req.SessionID).Msg("Interview summarized and session closed")
	writeJSON(w, http.StatusOK, summaryResponse{Summary: backend.CleanResponse(text)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
