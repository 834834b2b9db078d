// Package paper provides the simulated execution venue.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// DefaultLatency is the simulated round-trip time of an order.
const DefaultLatency = 500 * time.Millisecond

// Broker acknowledges every order as FILLED for the full quantity after a
// fixed latency. It implements domain.Broker.
type Broker struct {
	latency time.Duration
	logger  *slog.Logger
}

// NewBroker creates a simulated broker. A negative latency is treated as
// zero.
func NewBroker(latency time.Duration, logger *slog.Logger) *Broker {
	if latency < 0 {
		latency = 0
	}
	return &Broker{
		latency: latency,
		logger:  logger.With(slog.String("component", "paper_broker")),
	}
}

// Submit waits for the configured latency, or until ctx is done, and then
// returns a FILLED acknowledgement with a fresh order id.
func (b *Broker) Submit(ctx context.Context, symbol domain.Symbol, side domain.OrderSide, quantity decimal.Decimal) (domain.ExecutionResult, error) {
	if b.latency > 0 {
		timer := time.NewTimer(b.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.ExecutionResult{}, fmt.Errorf("paper: submit %s %s: %w", side, symbol, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("paper: submit %s %s: %w", side, symbol, err)
	}

	res := domain.ExecutionResult{
		OrderID:     uuid.NewString(),
		Status:      domain.OrderStatusFilled,
		ExecutedQty: quantity,
	}
	b.logger.Debug("simulated fill",
		slog.String("symbol", string(symbol)),
		slog.String("side", string(side)),
		slog.String("qty", quantity.String()),
		slog.String("order_id", res.OrderID),
	)
	return res, nil
}
