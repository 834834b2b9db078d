package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/papertrader/internal/automation"
	"github.com/alanyoungcy/papertrader/internal/domain"
)

// FeedStater reports the market feed connection state.
type FeedStater interface {
	State() domain.ConnectionState
}

// HaltReporter reports whether the execution engine has halted.
type HaltReporter interface {
	Halted() error
}

// AutomationStatuser reports the automation loop state.
type AutomationStatuser interface {
	Status() automation.Status
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Mode          string                 `json:"mode"`
	Feed          domain.ConnectionState `json:"feed"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	EngineHalted  bool                   `json:"engine_halted"`
	HaltReason    string                 `json:"halt_reason,omitempty"`
	Automation    *automation.Status     `json:"automation,omitempty"`
}

// StatusHandler serves the runtime status used by dashboards. engine and
// automation are nil in monitor mode.
type StatusHandler struct {
	mode       string
	startedAt  time.Time
	feed       FeedStater
	engine     HaltReporter
	automation AutomationStatuser
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, feed FeedStater, engine HaltReporter, automation AutomationStatuser) *StatusHandler {
	return &StatusHandler{
		mode:       mode,
		startedAt:  startedAt,
		feed:       feed,
		engine:     engine,
		automation: automation,
	}
}

// Snapshot builds the current status.
func (h *StatusHandler) Snapshot() StatusResponse {
	resp := StatusResponse{
		Mode:          h.mode,
		Feed:          domain.ConnectionDisconnected,
		UptimeSeconds: max(int64(time.Since(h.startedAt).Seconds()), 0),
	}
	if h.feed != nil {
		resp.Feed = h.feed.State()
	}
	if h.engine != nil {
		if err := h.engine.Halted(); err != nil {
			resp.EngineHalted = true
			resp.HaltReason = err.Error()
		}
	}
	if h.automation != nil {
		st := h.automation.Status()
		resp.Automation = &st
	}
	return resp
}

// GetStatus responds with the mode, feed connection state and engine health.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}
