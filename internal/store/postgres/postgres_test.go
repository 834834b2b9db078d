package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{User: "u", Password: "p", Database: "papertrader"},
			want: "postgres://u:p@localhost:5432/papertrader?sslmode=disable",
		},
		{
			name: "all fields",
			cfg:  ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "d", SSLMode: "require"},
			want: "postgres://u:p@db:6543/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "001_init.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	require.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS orders")
	require.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS audit_log")
}

func TestOrderListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no filter", func(t *testing.T) {
		q := orderListQuery(domain.OrderFilter{})
		require.Equal(t,
			"SELECT "+orderSelectCols+" FROM orders WHERE 1=1 ORDER BY executed_at DESC, id",
			q.String())
		require.Empty(t, q.args)
	})

	t.Run("symbol window and paging", func(t *testing.T) {
		q := orderListQuery(domain.OrderFilter{
			Symbol:   "BTC",
			ListOpts: domain.ListOpts{Since: &since, Limit: 10, Offset: 20},
		})
		require.Equal(t,
			"SELECT "+orderSelectCols+" FROM orders WHERE 1=1 AND symbol = $1 AND executed_at >= $2"+
				" ORDER BY executed_at DESC, id LIMIT $3 OFFSET $4",
			q.String())
		require.Equal(t, []any{"BTC", since, 10, 20}, q.args)
	})
}

func TestAuditListQuery(t *testing.T) {
	until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	q := auditListQuery(domain.ListOpts{Until: &until, Limit: 5})
	require.Equal(t,
		"SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 AND created_at <= $1"+
			" ORDER BY created_at DESC, id DESC LIMIT $2",
		q.String())
	require.Equal(t, []any{until, 5}, q.args)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unexpected destination type")
		}
	}
	return nil
}

func TestScanOrderFromRow(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))

	o, err := scanOrderFromRow(fakeRow{values: []any{
		"ord-1", "ETH", "SELL", "3000.50", "0.25", "750.125",
		"FILLED", true, "AI signal", "b-9", ts,
	}})
	require.NoError(t, err)
	require.Equal(t, "ord-1", o.ID)
	require.Equal(t, domain.Symbol("ETH"), o.Symbol)
	require.Equal(t, domain.OrderSideSell, o.Side)
	require.Equal(t, domain.OrderStatusFilled, o.Status)
	require.Equal(t, "3000.5", o.Price.String())
	require.Equal(t, "0.25", o.Amount.String())
	require.Equal(t, "750.125", o.Total.String())
	require.True(t, o.IsAutomated)
	require.Equal(t, "b-9", o.BrokerID)
	require.Equal(t, time.UTC, o.Timestamp.Location())

	_, err = scanOrderFromRow(fakeRow{values: []any{
		"ord-2", "ETH", "BUY", "nan?", "1", "1",
		"FILLED", false, "", "", ts,
	}})
	require.Error(t, err)
}
