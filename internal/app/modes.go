package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrader/internal/automation"
	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/executor"
	"github.com/alanyoungcy/papertrader/internal/feed"
	"github.com/alanyoungcy/papertrader/internal/ledger"
	"github.com/alanyoungcy/papertrader/internal/market"
	"github.com/alanyoungcy/papertrader/internal/server"
	"github.com/alanyoungcy/papertrader/internal/server/handler"
	"github.com/alanyoungcy/papertrader/internal/server/ws"
	"github.com/alanyoungcy/papertrader/internal/service"
)

// marketSide is the price ingestion half shared by every mode.
type marketSide struct {
	symbols domain.SymbolSet
	store   *market.PriceStore
	feed    domain.PriceFeed
	binance *feed.BinanceFeed // nil when mirroring the bus
	relay   *priceRelay       // nil when mirroring the bus
	hub     *ws.Hub           // nil when the server is disabled
	bus     domain.SignalBus  // where services publish; may be nil
	status  *handler.StatusHandler
}

// buildMarket creates the price store, its feed and the event fan-out. When
// prices are mirrored from the bus the store is not published back to it.
func (a *App) buildMarket(deps *Dependencies) (*marketSide, error) {
	list, err := a.cfg.SymbolList()
	if err != nil {
		return nil, fmt.Errorf("app: symbols: %w", err)
	}
	m := &marketSide{symbols: domain.NewSymbolSet(list)}
	m.store = market.NewPriceStore(m.symbols, a.cfg.Market.HistorySize, a.cfg.Market.Bucket.Duration)

	if a.cfg.Server.Enabled {
		m.hub = ws.NewHub(deps.SignalBus, ws.Config{Status: func() any {
			if m.status == nil {
				return nil
			}
			return m.status.Snapshot()
		}}, a.logger)
	}

	switch {
	case deps.SignalBus != nil:
		m.bus = deps.SignalBus
	case m.hub != nil:
		m.bus = ws.NewLocalBus(m.hub)
	}

	if a.cfg.Market.Source == "bus" {
		if deps.SignalBus == nil {
			return nil, errors.New("app: market source \"bus\" requires redis")
		}
		m.feed = feed.NewBusFeeder(deps.SignalBus, m.store, a.logger)
		return m, nil
	}

	m.binance = feed.NewBinanceFeed(a.cfg.Market.WSURL, list, m.store, deps.History, a.logger)
	m.feed = m.binance
	m.relay = newPriceRelay(service.NewPriceService(deps.PriceCache, m.bus, a.logger), 256, a.logger)
	m.store.OnUpdate(m.relay.Enqueue)
	return m, nil
}

// start launches the feed and the relay. Feed state transitions are
// reported to events when it is non-nil.
func (m *marketSide) start(ctx context.Context, g *errgroup.Group, events *service.EventService) {
	if m.binance != nil && events != nil {
		m.binance.OnStateChange(func(s domain.ConnectionState) {
			events.OnFeedState(ctx, s)
		})
	}
	g.Go(func() error {
		return ignoreCanceled(m.feed.Run(ctx))
	})
	if m.relay != nil {
		g.Go(func() error {
			return m.relay.Run(ctx)
		})
	}
}

// PaperMode runs the full simulator: price feed, execution engine, automation
// loop and the HTTP/WebSocket API. It blocks until ctx is cancelled.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	m, err := a.buildMarket(deps)
	if err != nil {
		return err
	}

	l := ledger.New(m.symbols, a.cfg.InitialCash)
	book := ledger.NewOrderBook()
	advisory := ledger.NewAdvisoryLog()

	engine := executor.NewEngine(l, book, m.store, deps.Broker, executor.Options{
		BrokerTimeout: a.cfg.Executor.BrokerTimeout.Duration,
		DedupTTL:      a.cfg.Executor.DedupTTL.Duration,
	}, a.logger)

	events := service.NewEventService(m.bus, deps.OrderStore, deps.AuditStore, deps.Notifier, a.logger)
	engine.AddObserver(events)

	autoSymbol, err := domain.ParseSymbol(a.cfg.Automation.Symbol)
	if err != nil {
		return fmt.Errorf("app: automation symbol: %w", err)
	}
	loop := automation.New(automation.Config{
		Interval:            a.cfg.Automation.Interval.Duration,
		PolicyTimeout:       a.cfg.Policy.Timeout.Duration,
		ConfidenceThreshold: a.cfg.Automation.ConfidenceThreshold,
		BuyFraction:         a.cfg.Automation.BuyFraction,
		SellFraction:        a.cfg.Automation.SellFraction,
		MinNotional:         a.cfg.Automation.MinNotional,
		HistoryWindow:       a.cfg.Automation.HistoryWindow,
	}, m.symbols, autoSymbol, m.store, l, engine, deps.Policy, advisory, a.logger)
	loop.OnDecision(events.OnDecision)

	orders := service.NewOrderService(engine, l, book, m.store, m.symbols, deps.OrderStore, deps.RateLimiter,
		service.OrderServiceConfig{
			BuyFraction:  a.cfg.Automation.BuyFraction,
			SellFraction: a.cfg.Automation.SellFraction,
			RateLimit:    a.cfg.Server.OrderRateLimit,
		}, a.logger)
	portfolio := service.NewPortfolioService(l, m.store, m.symbols)

	g, gctx := errgroup.WithContext(ctx)

	m.start(gctx, g, events)

	g.Go(func() error {
		return superviseEngine(gctx, engine.Run, loop, advisory, a.logger)
	})

	if a.cfg.Automation.Enabled {
		loop.Enable(gctx)
	}
	g.Go(func() error {
		<-gctx.Done()
		loop.Disable()
		loop.Wait()
		events.Wait()
		return nil
	})

	a.startHousekeeping(gctx, g, deps)

	if a.cfg.Server.Enabled {
		m.status = handler.NewStatusHandler(a.cfg.Mode, time.Now(), m.feed, engine, loop)
		handlers := server.Handlers{
			Health:     handler.NewHealthHandler(),
			Status:     m.status,
			Prices:     handler.NewPriceHandler(m.store),
			Portfolio:  handler.NewPortfolioHandler(portfolio),
			Orders:     handler.NewOrderHandler(orders, a.logger),
			Automation: handler.NewAutomationHandler(loopControl{ctx: gctx, Loop: loop}, advisory),
		}
		if deps.OrderStore != nil && deps.AuditStore != nil {
			handlers.Archive = handler.NewArchiveHandler(orders, deps.AuditStore, a.logger)
		}
		a.startHTTPServer(gctx, g, handlers, m.hub, deps)
	}

	a.logger.InfoContext(ctx, "paper mode running",
		slog.Int("symbols", m.symbols.Len()),
		slog.String("initial_cash", a.cfg.InitialCash.String()),
		slog.String("policy", deps.Policy.Name()),
		slog.String("broker", a.cfg.Broker.Kind),
		slog.Bool("automation", a.cfg.Automation.Enabled),
	)
	return g.Wait()
}

// superviseEngine runs the engine housekeeping. A halt stops automation
// before the ConsistencyError is returned, which ends the errgroup and with
// it the process.
func superviseEngine(
	ctx context.Context,
	run func(context.Context) error,
	loop interface{ Disable() bool },
	advisory *ledger.AdvisoryLog,
	logger *slog.Logger,
) error {
	err := ignoreCanceled(run(ctx))
	if err == nil {
		return nil
	}
	logger.Error("execution engine halted, shutting down", slog.String("error", err.Error()))
	if loop.Disable() {
		advisory.Add(fmt.Sprintf("Automation stopped: %v", err), domain.SentimentNegative)
	}
	return fmt.Errorf("app: execution engine: %w", err)
}

// MonitorMode runs the price feed and a read-only API: health, status and
// prices. No orders are accepted and automation never starts.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	m, err := a.buildMarket(deps)
	if err != nil {
		return err
	}
	events := service.NewEventService(m.bus, nil, nil, nil, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	m.start(gctx, g, events)
	g.Go(func() error {
		<-gctx.Done()
		events.Wait()
		return nil
	})

	a.startHousekeeping(gctx, g, deps)

	if a.cfg.Server.Enabled {
		m.status = handler.NewStatusHandler(a.cfg.Mode, time.Now(), m.feed, nil, nil)
		a.startHTTPServer(gctx, g, server.Handlers{
			Health: handler.NewHealthHandler(),
			Status: m.status,
			Prices: handler.NewPriceHandler(m.store),
		}, m.hub, deps)
	}

	a.logger.InfoContext(ctx, "monitor mode running",
		slog.Int("symbols", m.symbols.Len()),
		slog.String("source", a.cfg.Market.Source),
	)
	return g.Wait()
}

// startHousekeeping prunes idle in-process rate-limit buckets.
func (a *App) startHousekeeping(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.LocalLimiter == nil {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				deps.LocalLimiter.Prune(10 * time.Minute)
			}
		}
	})
}

// startHTTPServer runs the WebSocket hub and the HTTP server inside g and
// shuts the server down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, handlers server.Handlers, hub *ws.Hub, deps *Dependencies) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	if hub != nil {
		g.Go(func() error {
			return ignoreCanceled(hub.Run(ctx))
		})
	}
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
