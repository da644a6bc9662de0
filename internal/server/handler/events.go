package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// EventHandler serves the engine event log and the audit trail.
type EventHandler struct {
	events domain.EventStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events domain.EventStore, audit domain.AuditStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, audit: audit, logger: logger.With(slog.String("handler", "events"))}
}

// ListEvents returns committed engine events, newest first.
// GET /api/events?limit=&offset=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	out := make([]domain.EventRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Record())
	}
	writeJSON(w, http.StatusOK, out)
}

// ListAudit returns audit rows, newest first.
// GET /api/audit?limit=&offset=
func (h *EventHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
