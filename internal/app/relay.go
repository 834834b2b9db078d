package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/papertrader/internal/automation"
	"github.com/alanyoungcy/papertrader/internal/domain"
)

// updateHandler is the write-through side of a price tick.
type updateHandler interface {
	HandleUpdate(ctx context.Context, u domain.PriceUpdate) error
}

// priceRelay moves accepted ticks off the feed goroutine. PriceStore hooks
// must not block, so Enqueue drops the tick when the queue is full; the next
// tick carries a fresher price anyway.
type priceRelay struct {
	handler updateHandler
	queue   chan domain.PriceUpdate
	logger  *slog.Logger
}

func newPriceRelay(handler updateHandler, size int, logger *slog.Logger) *priceRelay {
	if size <= 0 {
		size = 256
	}
	return &priceRelay{
		handler: handler,
		queue:   make(chan domain.PriceUpdate, size),
		logger:  logger.With(slog.String("component", "price_relay")),
	}
}

// Enqueue is registered with PriceStore.OnUpdate.
func (r *priceRelay) Enqueue(u domain.PriceUpdate) {
	select {
	case r.queue <- u:
	default:
		r.logger.Debug("relay queue full, dropping tick", slog.String("symbol", string(u.Symbol)))
	}
}

// Run drains the queue until ctx is cancelled.
func (r *priceRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-r.queue:
			if err := r.handler.HandleUpdate(ctx, u); err != nil {
				r.logger.WarnContext(ctx, "price write-through failed",
					slog.String("symbol", string(u.Symbol)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// loopControl binds the automation loop to the application context so HTTP
// handlers, whose request contexts end with the response, can arm it.
type loopControl struct {
	ctx context.Context
	*automation.Loop
}

// Enable arms the loop for the lifetime of the application.
func (c loopControl) Enable() bool {
	return c.Loop.Enable(c.ctx)
}

// ignoreCanceled maps a shutdown-induced error to nil.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
