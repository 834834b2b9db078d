package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore() *PriceStore {
	return NewPriceStore(domain.NewSymbolSet(domain.DefaultSymbols), 0, 0)
}

func tick(sym domain.Symbol, price string, at time.Time) domain.PriceUpdate {
	return domain.PriceUpdate{
		Symbol:    sym,
		Price:     decimal.RequireFromString(price),
		Change24h: decimal.RequireFromString("1.5"),
		Time:      at,
	}
}

func TestNewStoreStartsUnknown(t *testing.T) {
	ps := newStore()
	snap, ok := ps.Snapshot("BTC")
	require.True(t, ok)
	require.False(t, snap.Known(), "fresh symbol must have unknown price")
	require.Empty(t, snap.Series)

	_, ok = ps.Snapshot("XRP")
	require.False(t, ok)
}

func TestApplyUpdateSameBucketReplaces(t *testing.T) {
	ps := newStore()
	require.True(t, ps.ApplyUpdate(tick("BTC", "50000", t0.Add(5*time.Second))))
	require.True(t, ps.ApplyUpdate(tick("BTC", "50100", t0.Add(40*time.Second))))

	snap, _ := ps.Snapshot("BTC")
	require.Len(t, snap.Series, 1, "same-minute tick must replace")
	require.True(t, snap.Series[0].Price.Equal(decimal.NewFromInt(50100)))
	require.Equal(t, t0, snap.Series[0].Time)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(50100)))
	require.Equal(t, "1.5", snap.Change24h.String())

	require.True(t, ps.ApplyUpdate(tick("BTC", "50200", t0.Add(61*time.Second))))
	snap, _ = ps.Snapshot("BTC")
	require.Len(t, snap.Series, 2)
}

func TestApplyUpdateBoundedAndOrdered(t *testing.T) {
	ps := newStore()
	for i := 0; i < 120; i++ {
		ps.ApplyUpdate(tick("ETH", decimal.NewFromInt(int64(3000+i)).String(), t0.Add(time.Duration(i)*time.Minute)))

		snap, _ := ps.Snapshot("ETH")
		require.LessOrEqual(t, len(snap.Series), DefaultHistorySize)
		for j := 1; j < len(snap.Series); j++ {
			require.False(t, snap.Series[j].Time.Before(snap.Series[j-1].Time), "series must be time-ordered")
		}
	}

	snap, _ := ps.Snapshot("ETH")
	require.Len(t, snap.Series, DefaultHistorySize)
	require.True(t, snap.Series[0].Price.Equal(decimal.NewFromInt(3070)), "oldest points evicted first")
	require.True(t, snap.Series[DefaultHistorySize-1].Price.Equal(decimal.NewFromInt(3119)))
}

func TestApplyUpdateDropsInvalid(t *testing.T) {
	ps := newStore()
	tests := []struct {
		name string
		u    domain.PriceUpdate
	}{
		{"zero price", tick("BTC", "0", t0)},
		{"negative price", tick("BTC", "-1", t0)},
		{"unknown symbol", tick("XRP", "1", t0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, ps.ApplyUpdate(tt.u))
		})
	}
	snap, _ := ps.Snapshot("BTC")
	require.Empty(t, snap.Series)
}

func TestLateTickStaysOrdered(t *testing.T) {
	ps := newStore()
	ps.ApplyUpdate(tick("SOL", "100", t0.Add(2*time.Minute)))
	ps.ApplyUpdate(tick("SOL", "99", t0))

	snap, _ := ps.Snapshot("SOL")
	require.Len(t, snap.Series, 1)
	require.Equal(t, t0.Add(2*time.Minute), snap.Series[0].Time)
	require.True(t, snap.Series[0].Price.Equal(decimal.NewFromInt(99)))
}

func TestSnapshotIsACopy(t *testing.T) {
	ps := newStore()
	ps.ApplyUpdate(tick("BTC", "50000", t0))

	snap, _ := ps.Snapshot("BTC")
	snap.Series[0].Price = decimal.NewFromInt(1)

	again, _ := ps.Snapshot("BTC")
	require.True(t, again.Series[0].Price.Equal(decimal.NewFromInt(50000)))
}

func TestSeedHistory(t *testing.T) {
	ps := newStore()
	seed := make([]domain.PricePoint, 0, 60)
	for i := 59; i >= 0; i-- {
		seed = append(seed, domain.PricePoint{
			Time:  t0.Add(time.Duration(i) * time.Minute),
			Price: decimal.NewFromInt(int64(100 + i)),
		})
	}

	require.True(t, ps.SeedHistory("SOL", seed))
	require.False(t, ps.SeedHistory("SOL", seed), "seeding is one-shot")

	snap, _ := ps.Snapshot("SOL")
	require.Len(t, snap.Series, DefaultHistorySize)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(159)), "price comes from the newest seeded point")
	require.True(t, snap.Series[0].Price.Equal(decimal.NewFromInt(110)))
}

func TestSeedHistoryKeepsLiveTicks(t *testing.T) {
	ps := newStore()
	ps.ApplyUpdate(tick("BTC", "51000", t0.Add(3*time.Minute)))

	ps.SeedHistory("BTC", []domain.PricePoint{
		{Time: t0, Price: decimal.NewFromInt(50000)},
		{Time: t0.Add(time.Minute), Price: decimal.NewFromInt(50500)},
		{Time: t0.Add(3 * time.Minute), Price: decimal.NewFromInt(1)},
	})

	snap, _ := ps.Snapshot("BTC")
	require.Len(t, snap.Series, 3)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(51000)), "live price wins over seed")
	require.True(t, snap.Series[2].Price.Equal(decimal.NewFromInt(51000)))
}

func TestSeedHistoryEmptyLeavesPriceUnknown(t *testing.T) {
	ps := newStore()
	require.True(t, ps.SeedHistory("DOGE", nil))
	require.True(t, ps.Price("DOGE").IsZero())
}

func TestOnUpdateHandlers(t *testing.T) {
	ps := newStore()
	var got []domain.PriceUpdate
	ps.OnUpdate(func(u domain.PriceUpdate) { got = append(got, u) })

	ps.ApplyUpdate(tick("BTC", "50000", t0))
	ps.ApplyUpdate(tick("BTC", "0", t0))
	require.Len(t, got, 1)
	require.Equal(t, domain.Symbol("BTC"), got[0].Symbol)
}

func TestRecentPricesAndStats(t *testing.T) {
	ps := newStore()
	for i, p := range []string{"10", "12", "14", "16"} {
		ps.ApplyUpdate(tick("ETH", p, t0.Add(time.Duration(i)*time.Minute)))
	}

	recent := ps.RecentPrices("ETH", 3)
	require.Len(t, recent, 3)
	require.Equal(t, "12", recent[0].String())

	require.InDelta(t, 13.0, Average(ps.RecentPrices("ETH", 20)), 1e-9)
	require.InDelta(t, 2.2360679, Volatility(ps.RecentPrices("ETH", 20)), 1e-6)
	require.Zero(t, Volatility(recent[:1]))

	prices := ps.Prices()
	require.Len(t, prices, 4)
	require.Equal(t, "16", prices["ETH"].String())
}
