package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, req service.ManualOrder) (domain.ExecutionReport, error)
	History(filter domain.OrderFilter) []domain.Order
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "orders"),
	}
}

type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// placeOrderRequest is the manual quick-trade body. Amount and Fraction are
// optional; with neither, the default fraction for the side applies.
type placeOrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Fraction      *decimal.Decimal `json:"fraction,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// ListOrders returns the session's filled orders, newest first.
// GET /api/orders?symbol=BTC&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orders := h.orders.History(filter)
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// PlaceOrder executes a manual market order at the current price.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount != nil && req.Fraction != nil {
		writeError(w, http.StatusBadRequest, "amount and fraction are mutually exclusive")
		return
	}
	sym, err := domain.ParseSymbol(req.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side, err := domain.ParseOrderSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A client disconnect must not abandon a submission midway; the engine's
	// broker timeout bounds the call instead.
	report, err := h.orders.PlaceOrder(context.WithoutCancel(r.Context()), service.ManualOrder{
		Symbol:        sym,
		Side:          side,
		Amount:        req.Amount,
		Fraction:      req.Fraction,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// writeOrderError maps the execution error taxonomy onto HTTP statuses.
func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ext  *domain.ExternalCallError
		cons *domain.ConsistencyError
	)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &ext):
		h.logger.WarnContext(r.Context(), "broker call failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "broker unavailable")
	case errors.Is(err, domain.ErrEngineHalted), errors.As(err, &cons):
		h.logger.ErrorContext(r.Context(), "execution engine halted", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "trading halted")
	default:
		h.logger.ErrorContext(r.Context(), "place order failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to place order")
	}
}
