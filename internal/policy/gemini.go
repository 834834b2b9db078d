package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the language-model policy.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// generator produces a JSON decision for a prompt. The genai client
// implements it in production; tests substitute a fake.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini asks a Gemini model for a structured trading decision.
type Gemini struct {
	gen    generator
	model  string
	logger *slog.Logger
}

// NewGemini builds the policy. An empty API key is not an error: the policy
// is created unconfigured and always holds with reason "API Key missing".
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	g := &Gemini{
		model:  cfg.Model,
		logger: logger.With(slog.String("policy", "gemini")),
	}
	if cfg.APIKey == "" {
		g.logger.Warn("gemini api key missing, policy will always hold")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("policy: gemini client: %w", err)
	}
	g.gen = &genaiGenerator{client: client, model: cfg.Model}
	return g, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Decide prompts the model with the recent series and parses its JSON reply.
// Transport failures are returned as *domain.ExternalCallError alongside a
// HOLD decision.
func (g *Gemini) Decide(ctx context.Context, req domain.DecisionRequest) (domain.AiDecision, error) {
	if g.gen == nil {
		return domain.HoldDecision("API Key missing"), nil
	}

	text, err := g.gen.Generate(ctx, buildPrompt(req))
	if err != nil {
		return domain.HoldDecision("Analysis Error"), &domain.ExternalCallError{Op: "gemini.generate", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return domain.HoldDecision("No response from AI"), nil
	}

	dec, err := ParseDecision(text)
	if err != nil {
		g.logger.Warn("unparseable model response",
			slog.String("model", g.model),
			slog.String("error", err.Error()),
		)
		return domain.HoldDecision("Analysis Error"), err
	}
	return dec, nil
}

// buildPrompt renders the market context. Only the last 20 prices are sent.
func buildPrompt(req domain.DecisionRequest) string {
	recent := req.RecentPrices
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	hist := make([]string, len(recent))
	for i, p := range recent {
		hist[i] = p.StringFixed(4)
	}

	var b strings.Builder
	b.WriteString("You are a high-frequency crypto trading assistant.\n")
	fmt.Fprintf(&b, "Current market for %s:\n", req.Symbol)
	fmt.Fprintf(&b, "- Price: %s\n", req.Price.String())
	fmt.Fprintf(&b, "- Recent price history (last %d ticks): [%s]\n", len(hist), strings.Join(hist, ", "))
	fmt.Fprintf(&b, "- Available cash: %s\n\n", req.CashBalance.StringFixed(2))
	b.WriteString("Classify the micro-trend as pumping, dumping or ranging and decide the immediate action: BUY, SELL or HOLD.\n")
	b.WriteString("For BUY suggest a conservative amount, at most 5% of available cash.\n")
	b.WriteString("Reply with strict JSON only.\n")
	return b.String()
}

var decisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"action": {
			Type: genai.TypeString,
			Enum: []string{"BUY", "SELL", "HOLD"},
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "0 to 100",
		},
		"reason": {
			Type:        genai.TypeString,
			Description: "Short technical analysis, at most 15 words",
		},
		"suggestedAmount": {
			Type:        genai.TypeNumber,
			Description: "Amount of coin to buy or sell",
		},
	},
	Required: []string{"action", "confidence", "reason"},
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   decisionSchema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
