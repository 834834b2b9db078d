package ledger

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// OrderBook is the append-only history of filled orders. It is never
// truncated: the financial record must stay complete for audit.
type OrderBook struct {
	orders []domain.Order
	ids    map[string]struct{}
	mu     sync.RWMutex
}

// NewOrderBook creates an empty OrderBook.
func NewOrderBook() *OrderBook {
	return &OrderBook{ids: make(map[string]struct{})}
}

// Append records an order. Orders need a unique, non-empty ID.
func (b *OrderBook) Append(o domain.Order) error {
	if o.ID == "" {
		return fmt.Errorf("order_book: append: empty order id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.ids[o.ID]; dup {
		return fmt.Errorf("order_book: append %s: duplicate order id", o.ID)
	}
	b.ids[o.ID] = struct{}{}
	b.orders = append(b.orders, o)
	return nil
}

// List returns orders newest first, optionally filtered by symbol and time
// range and paginated by Offset/Limit. A zero Limit means no limit.
func (b *OrderBook) List(f domain.OrderFilter) []domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Order, 0, min(len(b.orders), max(f.Limit, 0)))
	skipped := 0
	for i := len(b.orders) - 1; i >= 0; i-- {
		o := b.orders[i]
		if f.Symbol != "" && o.Symbol != f.Symbol {
			continue
		}
		if f.Since != nil && o.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && o.Timestamp.After(*f.Until) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of recorded orders.
func (b *OrderBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
