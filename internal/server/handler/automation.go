package handler

import (
	"errors"
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/automation"
	"github.com/alanyoungcy/papertrader/internal/domain"
)

// AutomationControl arms, disarms and retargets the automation loop.
type AutomationControl interface {
	Status() automation.Status
	Enable() bool
	Disable() bool
	SetSymbol(sym domain.Symbol) error
}

// AdvisoryReader lists the advisory log, newest first.
type AdvisoryReader interface {
	List() []domain.AdvisoryEntry
}

// AutomationHandler serves the automation control endpoints.
type AutomationHandler struct {
	loop     AutomationControl
	advisory AdvisoryReader
}

// NewAutomationHandler creates an AutomationHandler.
func NewAutomationHandler(loop AutomationControl, advisory AdvisoryReader) *AutomationHandler {
	return &AutomationHandler{loop: loop, advisory: advisory}
}

type automationResponse struct {
	automation.Status
	Changed bool `json:"changed"`
}

// GetAutomation returns the loop state.
// GET /api/automation
func (h *AutomationHandler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.loop.Status())
}

// Enable arms the loop. Enabling an armed loop is a no-op.
// POST /api/automation/enable
func (h *AutomationHandler) Enable(w http.ResponseWriter, r *http.Request) {
	changed := h.loop.Enable()
	writeJSON(w, http.StatusOK, automationResponse{Status: h.loop.Status(), Changed: changed})
}

// Disable disarms the loop. An order already submitted still completes.
// POST /api/automation/disable
func (h *AutomationHandler) Disable(w http.ResponseWriter, r *http.Request) {
	changed := h.loop.Disable()
	writeJSON(w, http.StatusOK, automationResponse{Status: h.loop.Status(), Changed: changed})
}

type setSymbolRequest struct {
	Symbol string `json:"symbol"`
}

// SetSymbol switches the symbol the loop trades.
// PUT /api/automation/symbol
func (h *AutomationHandler) SetSymbol(w http.ResponseWriter, r *http.Request) {
	var req setSymbolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sym, err := domain.ParseSymbol(req.Symbol)
	if err == nil {
		err = h.loop.SetSymbol(sym)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownSymbol) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, automationResponse{Status: h.loop.Status(), Changed: true})
}

type advisoryResponse struct {
	Entries []domain.AdvisoryEntry `json:"entries"`
}

// ListAdvisory returns the most recent advisory messages.
// GET /api/automation/log
func (h *AutomationHandler) ListAdvisory(w http.ResponseWriter, r *http.Request) {
	entries := h.advisory.List()
	if entries == nil {
		entries = []domain.AdvisoryEntry{}
	}
	writeJSON(w, http.StatusOK, advisoryResponse{Entries: entries})
}
