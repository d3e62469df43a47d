package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/dispatch"
	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const maxMessageBody = 64 << 10

// MessageDispatcher hands an inbound message to the engine and waits for
// the reply.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, in orchestrator.Inbound) (orchestrator.Outbound, error)
}

// SessionService reads and closes sessions.
type SessionService interface {
	Session(ctx context.Context, sessionID string) (session.State, error)
	Abandon(ctx context.Context, sessionID string) (session.State, error)
}

// SessionHandler serves the conversation endpoints used by the chat widget.
type SessionHandler struct {
	dispatcher MessageDispatcher
	sessions   SessionService
	logger     *logging.Logger
}

// NewSessionHandler panics on nil collaborators.
func NewSessionHandler(dispatcher MessageDispatcher, sessions SessionService, logger *logging.Logger) *SessionHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher cannot be nil")
	}
	if sessions == nil {
		panic("handlers: session service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{dispatcher: dispatcher, sessions: sessions, logger: logger}
}

type messageRequest struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PostMessage handles POST /v1/sessions/{sessionID}/messages.
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing sessionID", http.StatusBadRequest)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	out, err := h.dispatcher.Dispatch(r.Context(), orchestrator.Inbound{
		SessionID: sessionID,
		Text:      req.Text,
		Timestamp: req.Timestamp,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		http.Error(w, "text is required", http.StatusBadRequest)
	case errors.Is(err, dispatch.ErrDispatcherClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.logger.Error("failed to handle message", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// GetSession handles GET /v1/sessions/{sessionID}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	st, err := h.sessions.Session(r.Context(), sessionID)
	if err != nil {
		h.sessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Abandon handles POST /v1/sessions/{sessionID}/abandon.
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	st, err := h.sessions.Abandon(r.Context(), sessionID)
	if err != nil {
		h.sessionError(w, err, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":          st.SessionID,
		"conversationStatus": st.Status,
	})
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error, sessionID string) {
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.logger.Error("session lookup failed", "error", err, "session_id", sessionID)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
