package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/market"
	"github.com/alanyoungcy/papertrader/internal/platform/binance"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeStream struct {
	updates []domain.PriceUpdate
	closed  chan struct{}
	once    sync.Once
}

func newFakeStream(updates ...domain.PriceUpdate) *fakeStream {
	return &fakeStream{updates: updates, closed: make(chan struct{})}
}

func (s *fakeStream) ReadLoop(h binance.TickerHandler) error {
	for _, u := range s.updates {
		h(u)
	}
	<-s.closed
	return domain.ErrWSDisconnect
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeHistory struct {
	points map[domain.Symbol][]domain.PricePoint
}

func (h fakeHistory) FetchHistory(_ context.Context, sym domain.Symbol) ([]domain.PricePoint, error) {
	pts, ok := h.points[sym]
	if !ok {
		return nil, errors.New("unavailable")
	}
	return pts, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (r *stateRecorder) record(s domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) list() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionState(nil), r.states...)
}

func TestFeedSeedsAndStreams(t *testing.T) {
	symbols := []domain.Symbol{"BTC", "ETH"}
	store := market.NewPriceStore(domain.NewSymbolSet(symbols), 0, 0)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := fakeHistory{points: map[domain.Symbol][]domain.PricePoint{
		"ETH": {{Time: t0, Price: decimal.NewFromInt(3000)}, {Time: t0.Add(time.Minute), Price: decimal.NewFromInt(3010)}},
	}}

	stream := newFakeStream(domain.PriceUpdate{Symbol: "BTC", Price: decimal.NewFromInt(65000), Time: time.Now()})
	f := NewBinanceFeed("", symbols, store, history, quietLogger())
	f.dial = func(context.Context) (tickerStream, error) { return stream, nil }

	rec := &stateRecorder{}
	f.OnStateChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Price("BTC").Equal(decimal.NewFromInt(65000)) && store.Price("ETH").Equal(decimal.NewFromInt(3010))
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, domain.ConnectionConnected, f.State())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
	require.Equal(t, domain.ConnectionDisconnected, f.State())
	require.Equal(t, []domain.ConnectionState{
		domain.ConnectionConnecting,
		domain.ConnectionConnected,
		domain.ConnectionDisconnected,
	}, rec.list())

	// BTC had no history; it is known only through the live tick.
	snap, ok := store.Snapshot("BTC")
	require.True(t, ok)
	require.Len(t, snap.Series, 1)
}

func TestFeedReconnectsWithBackoff(t *testing.T) {
	symbols := []domain.Symbol{"SOL"}
	store := market.NewPriceStore(domain.NewSymbolSet(symbols), 0, 0)

	f := NewBinanceFeed("", symbols, store, nil, quietLogger())
	f.baseDelay = time.Millisecond
	f.maxDelay = 4 * time.Millisecond

	var mu sync.Mutex
	dials := 0
	f.dial = func(context.Context) (tickerStream, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return newFakeStream(domain.PriceUpdate{Symbol: "SOL", Price: decimal.NewFromInt(150), Time: time.Now()}), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Price("SOL").Equal(decimal.NewFromInt(150))
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, 3, dials)
	mu.Unlock()
}

func TestFeedWithoutSymbolsExits(t *testing.T) {
	f := NewBinanceFeed("", nil, nil, nil, quietLogger())
	require.NoError(t, f.Run(context.Background()))
}

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	if channel != domain.ChannelPrices {
		return nil, errors.New("unexpected channel")
	}
	return b.ch, nil
}

func TestBusFeederAppliesUpdates(t *testing.T) {
	symbols := []domain.Symbol{"DOGE"}
	store := market.NewPriceStore(domain.NewSymbolSet(symbols), 0, 0)
	bus := &chanBus{ch: make(chan []byte, 2)}

	payload, err := json.Marshal(domain.PriceUpdate{Symbol: "DOGE", Price: decimal.RequireFromString("0.12"), Time: time.Now()})
	require.NoError(t, err)
	bus.ch <- []byte("garbage")
	bus.ch <- payload
	close(bus.ch)

	f := NewBusFeeder(bus, store, quietLogger())
	require.Equal(t, domain.ConnectionConnecting, f.State())
	require.NoError(t, f.Run(context.Background()))
	require.True(t, store.Price("DOGE").Equal(decimal.RequireFromString("0.12")))
	require.Equal(t, domain.ConnectionDisconnected, f.State())
}
