package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// OrderArchive queries archived orders.
type OrderArchive interface {
	Archive(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}

// ArchiveHandler serves the durable history endpoints. They are only
// registered when PostgreSQL is enabled.
type ArchiveHandler struct {
	orders OrderArchive
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(orders OrderArchive, audit domain.AuditStore, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		orders: orders,
		audit:  audit,
		logger: logHandler(logger, "archive"),
	}
}

type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListOrders returns archived orders across sessions.
// GET /api/archive/orders?symbol=BTC&since=...&until=...&limit=50
func (h *ArchiveHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders, err := h.orders.Archive(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archived orders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archived orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit?since=...&until=...&limit=50&offset=0
func (h *ArchiveHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit entries failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
