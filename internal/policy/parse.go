package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// decisionPayload is the JSON object a language-model policy is asked to
// produce.
type decisionPayload struct {
	Action          string   `json:"action"`
	Confidence      *float64 `json:"confidence"`
	Reason          string   `json:"reason"`
	SuggestedAmount *float64 `json:"suggestedAmount,omitempty"`
}

// stripFences removes a surrounding ```json ... ``` markdown block.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ParseDecision decodes a model response into an AiDecision. Unknown actions,
// a missing confidence and malformed JSON are errors.
func ParseDecision(text string) (domain.AiDecision, error) {
	var p decisionPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &p); err != nil {
		return domain.AiDecision{}, fmt.Errorf("policy: parse decision: %w", err)
	}
	action, err := domain.ParseDecisionAction(p.Action)
	if err != nil {
		return domain.AiDecision{}, fmt.Errorf("policy: parse decision: %w", err)
	}
	if p.Confidence == nil {
		return domain.AiDecision{}, fmt.Errorf("policy: parse decision: missing confidence")
	}

	dec := domain.AiDecision{
		Action:     action,
		Confidence: *p.Confidence,
		Reason:     strings.TrimSpace(p.Reason),
	}
	if p.SuggestedAmount != nil && *p.SuggestedAmount > 0 {
		amt := decimal.NewFromFloat(*p.SuggestedAmount)
		dec.SuggestedAmount = &amt
	}
	return dec, nil
}
