package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// PriceService mirrors accepted price ticks to the shared price cache and
// fans them out on the signal bus. Either dependency may be nil.
type PriceService struct {
	priceCache domain.PriceCache
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(priceCache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		priceCache: priceCache,
		bus:        bus,
		logger:     logger.With(slog.String("component", "price_service")),
	}
}

// HandleUpdate writes the tick through to the cache and publishes it on the
// prices channel. A publish failure is logged, not returned.
func (s *PriceService) HandleUpdate(ctx context.Context, u domain.PriceUpdate) error {
	if s.priceCache != nil {
		if err := s.priceCache.SetPrice(ctx, u.Symbol, u.Price, u.Time); err != nil {
			return fmt.Errorf("price_service: set price for %q: %w", u.Symbol, err)
		}
	}

	if s.bus == nil {
		return nil
	}
	evt, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("price_service: marshal update: %w", err)
	}
	if pubErr := s.bus.Publish(ctx, domain.ChannelPrices, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish price update failed",
			slog.String("symbol", string(u.Symbol)),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// CachedPrices reads the shared cache for symbols. Symbols the cache does not
// hold are omitted.
func (s *PriceService) CachedPrices(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]decimal.Decimal, error) {
	if s.priceCache == nil {
		return map[domain.Symbol]decimal.Decimal{}, nil
	}
	prices, err := s.priceCache.GetPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}
