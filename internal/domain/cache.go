package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache mirrors the latest price per symbol to a shared store so other
// processes (dashboards, sibling bots) can read it.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol Symbol, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol Symbol) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, symbols []Symbol) (map[Symbol]decimal.Decimal, error)
}

// RateLimiter provides keyed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out plus a durable append-only stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Bus channel and stream names.
const (
	ChannelPrices    = "prices"
	ChannelOrders    = "orders"
	ChannelDecisions = "decisions"
	ChannelStatus    = "status"
	StreamOrders     = "stream:orders"
)
