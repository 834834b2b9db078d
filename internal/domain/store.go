package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderFilter narrows an order history query.
type OrderFilter struct {
	ListOpts
	Symbol Symbol
}

// OrderStore archives filled orders. It is write-mostly: the in-memory
// order book remains the source of truth for the session.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
