package handler

import (
	"net/http"
	"time"
)

// StatusInfo is the static part of GET /api/status.
type StatusInfo struct {
	Mode         string `json:"mode"`
	StoreDriver  string `json:"store_driver"`
	RedisEnabled bool   `json:"redis_enabled"`
	Custody      string `json:"custody"`
	Collateral   int    `json:"collateral_assets"`
}

// StatusHandler reports how this replica is wired.
type StatusHandler struct {
	info      StatusInfo
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, startedAt time.Time) *StatusHandler {
	return &StatusHandler{info: info, startedAt: startedAt}
}

// GetStatus returns the wiring summary and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		StatusInfo
		StartedAt     time.Time `json:"started_at"`
		UptimeSeconds int64     `json:"uptime_seconds"`
	}{
		StatusInfo:    h.info,
		StartedAt:     h.startedAt.UTC(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}
