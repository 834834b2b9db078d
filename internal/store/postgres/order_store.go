package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create archives a filled order. Re-archiving the same order ID is a no-op.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, symbol, side, price, amount, total, status,
			is_automated, reason, broker_order_id, executed_at
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7,
			$8, $9, $10, $11
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Symbol), string(o.Side),
		o.Price.String(), o.Amount.String(), o.Total.String(),
		string(o.Status), o.IsAutomated, o.Reason, o.BrokerID,
		o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// orderSelectCols lists the columns selected when reading orders. Numeric
// columns are read as text so they round-trip through decimal exactly.
const orderSelectCols = `id, symbol, side, price::text, amount::text, total::text,
	status, is_automated, reason, broker_order_id, executed_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		o                    domain.Order
		symbol, side, status string
		price, amount, total string
	)
	err := scanner.Scan(
		&o.ID, &symbol, &side, &price, &amount, &total,
		&status, &o.IsAutomated, &o.Reason, &o.BrokerID, &o.Timestamp,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Symbol = domain.Symbol(symbol)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)

	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("parse price: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Order{}, fmt.Errorf("parse amount: %w", err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("parse total: %w", err)
	}
	o.Timestamp = o.Timestamp.UTC()
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// orderListQuery builds the history query for filter, newest first.
func orderListQuery(filter domain.OrderFilter) *listQuery {
	q := newListQuery(`SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`)
	if filter.Symbol != "" {
		q.where("symbol = $%d", string(filter.Symbol))
	}
	q.window("executed_at", filter.ListOpts)
	q.page("executed_at DESC, id", filter.ListOpts)
	return q
}

// List returns archived orders matching filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	q := orderListQuery(filter)
	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// GetByID retrieves a single archived order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}
