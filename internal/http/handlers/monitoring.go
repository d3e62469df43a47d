package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/monitoring"
)

// MonitoringHandler exposes the execution log and aggregate metrics.
type MonitoringHandler struct {
	monitor *monitoring.Monitor
}

func NewMonitoringHandler(m *monitoring.Monitor) *MonitoringHandler {
	if m == nil {
		panic("handlers: monitor cannot be nil")
	}
	return &MonitoringHandler{monitor: m}
}

type logsResponse struct {
	Entries []monitoring.Entry `json:"entries"`
	Count   int                `json:"count"`
}

// SessionLogs handles GET /v1/monitoring/sessions/{sessionID}/logs.
func (h *MonitoringHandler) SessionLogs(w http.ResponseWriter, r *http.Request) {
	entries := h.monitor.LogsBySession(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Count: len(entries)})
}

// CorrelationLogs handles GET /v1/monitoring/correlations/{correlationID}/logs.
func (h *MonitoringHandler) CorrelationLogs(w http.ResponseWriter, r *http.Request) {
	entries := h.monitor.LogsByCorrelation(chi.URLParam(r, "correlationID"))
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Count: len(entries)})
}

// Metrics handles GET /v1/monitoring/metrics.
func (h *MonitoringHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Metrics())
}
