package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DecisionAction is the action proposed by a decision policy.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionHold DecisionAction = "HOLD"
)

// ParseDecisionAction normalizes a policy's action string.
func ParseDecisionAction(s string) (DecisionAction, error) {
	switch a := DecisionAction(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionBuy, ActionSell, ActionHold:
		return a, nil
	}
	return "", fmt.Errorf("unknown decision action %q", s)
}

// Side maps BUY/SELL to an order side. HOLD has no side.
func (a DecisionAction) Side() (OrderSide, bool) {
	switch a {
	case ActionBuy:
		return OrderSideBuy, true
	case ActionSell:
		return OrderSideSell, true
	}
	return "", false
}

// AiDecision is a policy's proposal. Confidence is in [0, 100].
type AiDecision struct {
	Action          DecisionAction   `json:"action"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason"`
	SuggestedAmount *decimal.Decimal `json:"suggested_amount,omitempty"`
}

// HoldDecision returns a zero-confidence HOLD carrying reason.
func HoldDecision(reason string) AiDecision {
	return AiDecision{Action: ActionHold, Confidence: 0, Reason: reason}
}

// DecisionRequest is the market context handed to a policy.
type DecisionRequest struct {
	Symbol       Symbol
	Price        decimal.Decimal
	RecentPrices []decimal.Decimal
	CashBalance  decimal.Decimal
}

// Policy proposes trades. Implementations should return a HOLD decision
// rather than an error when they are unconfigured.
type Policy interface {
	Name() string
	Decide(ctx context.Context, req DecisionRequest) (AiDecision, error)
}

// Sentiment tags an advisory log line for presentation.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// AdvisoryEntry is one line of the automation rationale log.
type AdvisoryEntry struct {
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Sentiment Sentiment `json:"sentiment"`
}
