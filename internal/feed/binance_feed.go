// Package feed keeps the price store supplied with market data.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/platform/binance"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	seedTimeout = 10 * time.Second
)

// PriceSink receives live ticks and one-shot history seeds.
// *market.PriceStore satisfies it.
type PriceSink interface {
	ApplyUpdate(u domain.PriceUpdate) bool
	SeedHistory(symbol domain.Symbol, points []domain.PricePoint) bool
}

// StateHandler is called on every connection state transition.
type StateHandler func(domain.ConnectionState)

// tickerStream is one live connection; *binance.Stream satisfies it.
type tickerStream interface {
	ReadLoop(handler binance.TickerHandler) error
	Close() error
}

type dialFunc func(ctx context.Context) (tickerStream, error)

// BinanceFeed seeds the sink from kline history, then streams miniTicker
// updates into it, reconnecting with exponential backoff. It implements
// domain.PriceFeed.
type BinanceFeed struct {
	symbols []domain.Symbol
	sink    PriceSink
	history domain.HistorySource
	dial    dialFunc
	logger  *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration

	mu       sync.RWMutex
	state    domain.ConnectionState
	handlers []StateHandler
}

// NewBinanceFeed creates a feed for symbols. history may be nil, in which case
// the sink is never seeded.
func NewBinanceFeed(wsURL string, symbols []domain.Symbol, sink PriceSink, history domain.HistorySource, logger *slog.Logger) *BinanceFeed {
	f := &BinanceFeed{
		symbols:   symbols,
		sink:      sink,
		history:   history,
		logger:    logger.With(slog.String("component", "binance_feed")),
		baseDelay: reconnectDelay,
		maxDelay:  maxReconnectDelay,
		state:     domain.ConnectionDisconnected,
	}
	f.dial = func(ctx context.Context) (tickerStream, error) {
		return binance.Dial(ctx, wsURL, symbols)
	}
	return f
}

// OnStateChange registers a handler. Call before Run.
func (f *BinanceFeed) OnStateChange(h StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

// State returns the current connection state.
func (f *BinanceFeed) State() domain.ConnectionState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *BinanceFeed) setState(s domain.ConnectionState) {
	f.mu.Lock()
	if f.state == s {
		f.mu.Unlock()
		return
	}
	f.state = s
	handlers := f.handlers
	f.mu.Unlock()

	f.logger.Info("feed state changed", slog.String("state", string(s)))
	for _, h := range handlers {
		h(s)
	}
}

// Run seeds history and streams until ctx is cancelled. It returns nil on
// shutdown.
func (f *BinanceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f.Seed(gctx)
		return nil
	})
	g.Go(func() error {
		return f.stream(gctx)
	})
	return g.Wait()
}

// Seed fetches history for every symbol concurrently. Failures are logged
// and leave the symbol unseeded.
func (f *BinanceFeed) Seed(ctx context.Context) {
	if f.history == nil {
		return
	}
	var wg sync.WaitGroup
	for _, sym := range f.symbols {
		wg.Add(1)
		go func(sym domain.Symbol) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, seedTimeout)
			defer cancel()

			pts, err := f.history.FetchHistory(fctx, sym)
			if err != nil {
				f.logger.Warn("history seed failed",
					slog.String("symbol", string(sym)),
					slog.String("error", err.Error()),
				)
				return
			}
			if f.sink.SeedHistory(sym, pts) {
				f.logger.Info("history seeded",
					slog.String("symbol", string(sym)),
					slog.Int("points", len(pts)),
				)
			}
		}(sym)
	}
	wg.Wait()
}

func (f *BinanceFeed) stream(ctx context.Context) error {
	delay := f.baseDelay
	for {
		if ctx.Err() != nil {
			f.setState(domain.ConnectionDisconnected)
			return nil
		}

		f.setState(domain.ConnectionConnecting)
		err := f.runConnection(ctx)
		f.setState(domain.ConnectionDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errSessionHealthy) {
			delay = f.baseDelay
		}

		f.logger.Warn("binance ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.maxDelay {
			delay = f.maxDelay
		}
	}
}

// errSessionHealthy marks a disconnect after at least one message was
// received, which resets the backoff.
var errSessionHealthy = errors.New("session delivered data")

func (f *BinanceFeed) runConnection(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	s, err := f.dial(dctx)
	cancel()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.Close()

	f.setState(domain.ConnectionConnected)
	f.logger.Info("binance ws subscribed", slog.Int("symbols", len(f.symbols)))

	received := false
	err = s.ReadLoop(func(u domain.PriceUpdate) {
		received = true
		f.sink.ApplyUpdate(u)
	})
	if received {
		return errors.Join(errSessionHealthy, err)
	}
	return err
}
