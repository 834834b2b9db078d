package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ParseOrderSide accepts "buy"/"sell" in any case.
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	}
	return "", fmt.Errorf("%w: side %q", ErrInvalidOrder, s)
}

// OrderStatus tracks the order lifecycle. Only FILLED orders are ever
// recorded; the other values describe broker acknowledgements.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Order is an immutable record of a simulated fill.
type Order struct {
	ID          string          `json:"id"`
	Symbol      Symbol          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Total       decimal.Decimal `json:"total"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      OrderStatus     `json:"status"`
	IsAutomated bool            `json:"is_automated"`
	Reason      string          `json:"reason,omitempty"`
	BrokerID    string          `json:"broker_order_id,omitempty"`
}

// OrderIntent is a request to trade, produced by a user or the automation
// loop. ClientOrderID is optional and only used for duplicate suppression.
type OrderIntent struct {
	Symbol        Symbol
	Side          OrderSide
	Amount        decimal.Decimal
	Price         decimal.Decimal
	IsAutomated   bool
	Reason        string
	ClientOrderID string
}

// Notional returns amount * price.
func (i OrderIntent) Notional() decimal.Decimal {
	return i.Amount.Mul(i.Price)
}

// ExecutionResult is the broker's acknowledgement of a submitted order. It is
// treated as a confirmation only; fills are recorded at the requested price.
type ExecutionResult struct {
	OrderID     string          `json:"order_id"`
	Status      OrderStatus     `json:"status"`
	ExecutedQty decimal.Decimal `json:"executed_qty"`
}

// Broker submits market orders to an execution venue (real or simulated).
type Broker interface {
	Submit(ctx context.Context, symbol Symbol, side OrderSide, quantity decimal.Decimal) (ExecutionResult, error)
}

// ExecutionState is a step of the execution engine's per-intent state machine.
type ExecutionState string

const (
	StateValidating ExecutionState = "validating"
	StateSubmitting ExecutionState = "submitting"
	StateCommitting ExecutionState = "committing"
	StateFilled     ExecutionState = "filled"
	StateRejected   ExecutionState = "rejected"
	StateFailed     ExecutionState = "failed"
)

// ExecutionReport is the outcome of a successfully filled intent.
type ExecutionReport struct {
	Order     Order           `json:"order"`
	Portfolio Portfolio       `json:"portfolio"`
	Broker    ExecutionResult `json:"broker"`
}
