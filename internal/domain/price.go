package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one bucketed sample in a symbol's price history.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// PriceUpdate is a normalized tick from the market-data feed.
type PriceUpdate struct {
	Symbol    Symbol          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"` // percent
	Time      time.Time       `json:"time"`
}

// PriceSnapshot is a read-only view of one symbol's market state. A zero
// Price means the price is unknown and trading on the symbol is disabled.
type PriceSnapshot struct {
	Symbol    Symbol          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Series    []PricePoint    `json:"series"`
}

// Known reports whether the snapshot carries a usable price.
func (s PriceSnapshot) Known() bool {
	return s.Price.IsPositive()
}

// ConnectionState is the lifecycle state of the streaming feed.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// HistorySource fetches a one-shot historical series used to seed the
// price store at startup.
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol Symbol) ([]PricePoint, error)
}

// PriceFeed streams price updates until ctx is cancelled, reconnecting on
// its own after transport failures.
type PriceFeed interface {
	Run(ctx context.Context) error
	State() ConnectionState
}
