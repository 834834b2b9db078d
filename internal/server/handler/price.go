package handler

import (
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// PriceReader exposes per-symbol market snapshots. *market.PriceStore
// satisfies it.
type PriceReader interface {
	Snapshot(symbol domain.Symbol) (domain.PriceSnapshot, bool)
	Snapshots() []domain.PriceSnapshot
}

// PriceHandler serves the market data endpoints.
type PriceHandler struct {
	prices PriceReader
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceReader) *PriceHandler {
	return &PriceHandler{prices: prices}
}

type listPricesResponse struct {
	Prices []domain.PriceSnapshot `json:"prices"`
}

// ListPrices returns the snapshot of every configured symbol. Symbols whose
// price is not known yet report a zero price.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	snaps := h.prices.Snapshots()
	if snaps == nil {
		snaps = []domain.PriceSnapshot{}
	}
	writeJSON(w, http.StatusOK, listPricesResponse{Prices: snaps})
}

// GetPrice returns one symbol's snapshot including its price series.
// GET /api/prices/{symbol}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sym, err := domain.ParseSymbol(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := h.prices.Snapshot(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
