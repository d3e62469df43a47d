package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// LeadsHandler serves the qualified-lead export.
type LeadsHandler struct {
	repo   leads.Repository
	logger *logging.Logger
}

func NewLeadsHandler(repo leads.Repository, logger *logging.Logger) *LeadsHandler {
	if repo == nil {
		panic("handlers: leads repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadsHandler{repo: repo, logger: logger}
}

var validTiers = map[session.Tier]bool{
	session.TierHot:          true,
	session.TierWarm:         true,
	session.TierCold:         true,
	session.TierNurture:      true,
	session.TierDisqualified: true,
}

// List handles GET /v1/leads?tier=hot&limit=50.
func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	tier := session.Tier(r.URL.Query().Get("tier"))
	if tier != "" && !validTiers[tier] {
		http.Error(w, "unknown tier", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.repo.ListByTier(r.Context(), tier, limit)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err, "tier", tier)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*leads.QualifiedLead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": list, "count": len(list)})
}

// Get handles GET /v1/leads/{sessionID}.
func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	lead, err := h.repo.GetBySession(r.Context(), sessionID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load lead", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}
