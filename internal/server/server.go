// Package server exposes the papertrader HTTP API and the WebSocket push
// channel.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/server/handler"
	"github.com/alanyoungcy/papertrader/internal/server/middleware"
	"github.com/alanyoungcy/papertrader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per second per client IP; 0 disables
}

// Handlers aggregates the HTTP handlers. Nil handlers are not registered:
// monitor mode leaves Orders and Automation nil, and Archive is only set
// when PostgreSQL is enabled.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Prices     *handler.PriceHandler
	Portfolio  *handler.PortfolioHandler
	Orders     *handler.OrderHandler
	Automation *handler.AutomationHandler
	Archive    *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// the middleware chain applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)
		mux.HandleFunc("GET /api/prices/{symbol}", handlers.Prices.GetPrice)
	}
	if handlers.Portfolio != nil {
		mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.GetPortfolio)
	}

	if handlers.Orders != nil {
		mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
		mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	}

	if handlers.Automation != nil {
		mux.HandleFunc("GET /api/automation", handlers.Automation.GetAutomation)
		mux.HandleFunc("POST /api/automation/enable", handlers.Automation.Enable)
		mux.HandleFunc("POST /api/automation/disable", handlers.Automation.Disable)
		mux.HandleFunc("PUT /api/automation/symbol", handlers.Automation.SetSymbol)
		mux.HandleFunc("GET /api/automation/log", handlers.Automation.ListAdvisory)
	}

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive/orders", handlers.Archive.ListOrders)
		mux.HandleFunc("GET /api/audit", handlers.Archive.ListAudit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down. It returns nil after a
// graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve is like Start but uses an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
