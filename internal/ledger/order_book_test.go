package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func order(id string, sym domain.Symbol, at time.Time) domain.Order {
	return domain.Order{ID: id, Symbol: sym, Side: domain.OrderSideBuy, Timestamp: at, Status: domain.OrderStatusFilled}
}

func TestOrderBookNewestFirst(t *testing.T) {
	b := NewOrderBook()
	t0 := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Append(order(fmt.Sprint(i), "BTC", t0.Add(time.Duration(i)*time.Second))))
	}

	got := b.List(domain.OrderFilter{})
	require.Len(t, got, 5)
	require.Equal(t, "4", got[0].ID)
	require.Equal(t, "0", got[4].ID)
}

func TestOrderBookRejectsDuplicateAndEmptyID(t *testing.T) {
	b := NewOrderBook()
	require.NoError(t, b.Append(order("a", "BTC", time.Now())))
	require.Error(t, b.Append(order("a", "ETH", time.Now())))
	require.Error(t, b.Append(order("", "ETH", time.Now())))
	require.Equal(t, 1, b.Len())
}

func TestOrderBookNeverTruncates(t *testing.T) {
	b := NewOrderBook()
	for i := 0; i < 500; i++ {
		require.NoError(t, b.Append(order(fmt.Sprint(i), "ETH", time.Now())))
	}
	require.Equal(t, 500, b.Len())
	require.Len(t, b.List(domain.OrderFilter{}), 500)
}

func TestOrderBookFilters(t *testing.T) {
	b := NewOrderBook()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	syms := []domain.Symbol{"BTC", "ETH"}
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Append(order(fmt.Sprint(i), syms[i%2], t0.Add(time.Duration(i)*time.Minute))))
	}

	btc := b.List(domain.OrderFilter{Symbol: "BTC"})
	require.Len(t, btc, 5)
	for _, o := range btc {
		require.Equal(t, domain.Symbol("BTC"), o.Symbol)
	}

	page := b.List(domain.OrderFilter{ListOpts: domain.ListOpts{Limit: 3, Offset: 2}})
	require.Equal(t, []string{"7", "6", "5"}, []string{page[0].ID, page[1].ID, page[2].ID})

	since := t0.Add(8 * time.Minute)
	require.Len(t, b.List(domain.OrderFilter{ListOpts: domain.ListOpts{Since: &since}}), 2)
}

func TestAdvisoryLogCapped(t *testing.T) {
	l := NewAdvisoryLog()
	for i := 0; i < 75; i++ {
		l.Add(fmt.Sprintf("line %d", i), domain.SentimentNeutral)
	}
	got := l.List()
	require.Len(t, got, AdvisoryLogCap)
	require.Equal(t, "line 74", got[0].Message)
	require.Equal(t, "line 25", got[AdvisoryLogCap-1].Message)
}
