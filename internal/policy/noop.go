package policy

import (
	"context"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Noop always holds.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Decide(context.Context, domain.DecisionRequest) (domain.AiDecision, error) {
	return domain.HoldDecision("No policy configured"), nil
}
