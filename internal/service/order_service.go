package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
)

// Executor submits order intents. *executor.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionReport, error)
}

// ManualOrder is a user's quick-trade request. Exactly one of Amount and
// Fraction is normally set; with neither, the default fraction for the side
// applies.
type ManualOrder struct {
	Symbol        domain.Symbol
	Side          domain.OrderSide
	Amount        *decimal.Decimal
	Fraction      *decimal.Decimal
	ClientOrderID string
}

// OrderServiceConfig holds sizing defaults and the manual order rate limit.
type OrderServiceConfig struct {
	BuyFraction  decimal.Decimal
	SellFraction decimal.Decimal
	RateLimit    int // orders per second; 0 disables
}

// OrderService turns manual requests into intents at the current price and
// serves the order history.
type OrderService struct {
	executor Executor
	ledger   *ledger.Ledger
	book     *ledger.OrderBook
	prices   PriceBook
	symbols  domain.SymbolSet
	archive  domain.OrderStore
	limiter  domain.RateLimiter
	cfg      OrderServiceConfig
	logger   *slog.Logger
}

// NewOrderService creates an OrderService. archive and limiter may be nil.
func NewOrderService(
	executor Executor,
	l *ledger.Ledger,
	book *ledger.OrderBook,
	prices PriceBook,
	symbols domain.SymbolSet,
	archive domain.OrderStore,
	limiter domain.RateLimiter,
	cfg OrderServiceConfig,
	logger *slog.Logger,
) *OrderService {
	if !cfg.BuyFraction.IsPositive() {
		cfg.BuyFraction = decimal.RequireFromString("0.10")
	}
	if !cfg.SellFraction.IsPositive() {
		cfg.SellFraction = decimal.RequireFromString("0.50")
	}
	return &OrderService{
		executor: executor,
		ledger:   l,
		book:     book,
		prices:   prices,
		symbols:  symbols,
		archive:  archive,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// PlaceOrder sizes a manual order and hands it to the executor.
func (s *OrderService) PlaceOrder(ctx context.Context, req ManualOrder) (domain.ExecutionReport, error) {
	if s.limiter != nil && s.cfg.RateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "orders:manual", s.cfg.RateLimit, time.Second)
		if err != nil {
			// Fail open on limiter errors.
			s.logger.WarnContext(ctx, "rate limiter error", slog.String("error", err.Error()))
		} else if !allowed {
			return domain.ExecutionReport{}, domain.ErrRateLimited
		}
	}

	reject := func(err error) (domain.ExecutionReport, error) {
		return domain.ExecutionReport{}, &domain.ValidationError{Symbol: req.Symbol, Side: req.Side, Err: err}
	}
	if !s.symbols.Contains(req.Symbol) {
		return reject(domain.ErrUnknownSymbol)
	}
	price := s.prices.Price(req.Symbol)
	if !price.IsPositive() {
		return reject(domain.ErrPriceUnknown)
	}

	amount, err := s.size(req, price)
	if err != nil {
		return reject(err)
	}

	return s.executor.Execute(ctx, domain.OrderIntent{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Amount:        amount,
		Price:         price,
		Reason:        "Manual order",
		ClientOrderID: req.ClientOrderID,
	})
}

// size resolves the order quantity from an explicit amount or a fraction of
// cash (BUY) or of the holding (SELL).
func (s *OrderService) size(req ManualOrder, price decimal.Decimal) (decimal.Decimal, error) {
	if req.Amount != nil {
		return *req.Amount, nil
	}

	var fraction decimal.Decimal
	switch {
	case req.Fraction != nil:
		fraction = *req.Fraction
	case req.Side == domain.OrderSideBuy:
		fraction = s.cfg.BuyFraction
	default:
		fraction = s.cfg.SellFraction
	}
	if !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: fraction %s not in (0, 1]", domain.ErrInvalidAmount, fraction)
	}

	p := s.ledger.Snapshot()
	if req.Side == domain.OrderSideBuy {
		return p.CashBalance.Mul(fraction).Div(price), nil
	}
	return p.Asset(req.Symbol).Balance.Mul(fraction), nil
}

// History returns the session's filled orders, newest first.
func (s *OrderService) History(filter domain.OrderFilter) []domain.Order {
	return s.book.List(filter)
}

// Archive queries the durable order archive.
func (s *OrderService) Archive(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("order_service: archive: %w", domain.ErrNotFound)
	}
	orders, err := s.archive.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("order_service: archive: %w", err)
	}
	return orders, nil
}
