package handler

import (
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/service"
)

// PortfolioViewer values the simulated account.
type PortfolioViewer interface {
	View() service.PortfolioView
}

// PortfolioHandler serves the portfolio endpoint.
type PortfolioHandler struct {
	portfolio PortfolioViewer
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(portfolio PortfolioViewer) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio}
}

// GetPortfolio returns cash, holdings marked to market and P&L.
// GET /api/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.portfolio.View())
}
