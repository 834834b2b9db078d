package policy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/market"
)

const (
	defaultStdDevThreshold = 1.5
	defaultMinPoints       = 5
)

// MomentumConfig tunes the rule-based policy.
type MomentumConfig struct {
	// StdDevThreshold is how many standard deviations the price must sit
	// away from the window mean before the policy takes a side.
	StdDevThreshold float64
	MinPoints       int
}

// Momentum follows short-term trend: a price well above the recent mean is a
// BUY, one well below it is a SELL. Confidence scales with the deviation, so
// a move of exactly StdDevThreshold yields 50.
type Momentum struct {
	cfg    MomentumConfig
	logger *slog.Logger
}

// NewMomentum creates a Momentum policy, filling zero fields with defaults.
func NewMomentum(cfg MomentumConfig, logger *slog.Logger) *Momentum {
	if cfg.StdDevThreshold <= 0 {
		cfg.StdDevThreshold = defaultStdDevThreshold
	}
	if cfg.MinPoints < 2 {
		cfg.MinPoints = defaultMinPoints
	}
	return &Momentum{
		cfg:    cfg,
		logger: logger.With(slog.String("policy", "momentum")),
	}
}

func (m *Momentum) Name() string { return "momentum" }

// Decide evaluates the deviation of req.Price from the mean of
// req.RecentPrices in units of their volatility.
func (m *Momentum) Decide(_ context.Context, req domain.DecisionRequest) (domain.AiDecision, error) {
	if len(req.RecentPrices) < m.cfg.MinPoints {
		return domain.HoldDecision("Not enough price history"), nil
	}

	avg := market.Average(req.RecentPrices)
	vol := market.Volatility(req.RecentPrices)
	if vol == 0 || avg == 0 {
		return domain.HoldDecision("Flat market"), nil
	}

	price := req.Price.InexactFloat64()
	deviation := (price - avg) / vol
	confidence := math.Min(100, 50*math.Abs(deviation)/m.cfg.StdDevThreshold)
	confidence = math.Round(confidence*100) / 100

	m.logger.Debug("momentum evaluated",
		slog.String("symbol", string(req.Symbol)),
		slog.Float64("avg", avg),
		slog.Float64("vol", vol),
		slog.Float64("deviation", deviation),
	)

	switch {
	case deviation >= m.cfg.StdDevThreshold:
		return domain.AiDecision{
			Action:     domain.ActionBuy,
			Confidence: confidence,
			Reason:     fmt.Sprintf("Price %.2f sigma above %d-tick mean", deviation, len(req.RecentPrices)),
		}, nil
	case deviation <= -m.cfg.StdDevThreshold:
		return domain.AiDecision{
			Action:     domain.ActionSell,
			Confidence: confidence,
			Reason:     fmt.Sprintf("Price %.2f sigma below %d-tick mean", -deviation, len(req.RecentPrices)),
		}, nil
	default:
		return domain.AiDecision{
			Action:     domain.ActionHold,
			Confidence: confidence,
			Reason:     "Ranging within normal volatility",
		}, nil
	}
}
