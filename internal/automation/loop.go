// Package automation runs the periodic decision loop that asks a policy for
// a trade and, when the policy is confident enough, sizes the order and hands
// it to the execution engine.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
)

// Executor submits order intents. *executor.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionReport, error)
}

// PriceSource provides per-symbol market snapshots.
type PriceSource interface {
	Snapshot(symbol domain.Symbol) (domain.PriceSnapshot, bool)
}

// PortfolioSource provides portfolio snapshots.
type PortfolioSource interface {
	Snapshot() domain.Portfolio
}

// Config holds the loop's schedule, threshold and sizing policy.
type Config struct {
	Interval            time.Duration
	PolicyTimeout       time.Duration
	ConfidenceThreshold float64         // act only when confidence is strictly above
	BuyFraction         decimal.Decimal // share of cash spent on a BUY
	SellFraction        decimal.Decimal // share of the holding sold on a SELL
	MinNotional         decimal.Decimal // orders at or below this notional are skipped
	HistoryWindow       int             // number of recent prices sent to the policy
}

// DefaultConfig returns the stock schedule and sizing policy.
func DefaultConfig() Config {
	return Config{
		Interval:            6 * time.Second,
		PolicyTimeout:       15 * time.Second,
		ConfidenceThreshold: 65,
		BuyFraction:         decimal.RequireFromString("0.10"),
		SellFraction:        decimal.RequireFromString("0.50"),
		MinNotional:         decimal.NewFromInt(5),
		HistoryWindow:       20,
	}
}

// Outcome classifies what one cycle did.
type Outcome string

const (
	OutcomeNoData       Outcome = "no_data"
	OutcomeHold         Outcome = "hold"
	OutcomeBelowMinimum Outcome = "below_min_notional"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeFilled       Outcome = "filled"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFailed       Outcome = "failed"
)

// CycleResult reports the decision and outcome of one cycle.
type CycleResult struct {
	Symbol   domain.Symbol
	Outcome  Outcome
	Decision domain.AiDecision
	Intent   *domain.OrderIntent
	Report   *domain.ExecutionReport
	Err      error
}

// Status is a point-in-time view of the loop for presentation.
type Status struct {
	Enabled  bool          `json:"enabled"`
	Symbol   domain.Symbol `json:"symbol"`
	Interval string        `json:"interval"`
	Policy   string        `json:"policy"`
}

// DecisionHook receives every decision the loop obtains.
type DecisionHook func(ctx context.Context, symbol domain.Symbol, decision domain.AiDecision)

// Loop is the automation loop. It is Disabled until Enable arms it; Disable
// cancels the schedule handle so no further cycle starts. An order already
// handed to the executor is never cancelled by Disable.
type Loop struct {
	cfg       Config
	symbols   domain.SymbolSet
	prices    PriceSource
	portfolio PortfolioSource
	executor  Executor
	policy    domain.Policy
	advisory  *ledger.AdvisoryLog
	hooks     []DecisionHook
	logger    *slog.Logger

	mu     sync.Mutex
	symbol domain.Symbol
	cancel context.CancelFunc // nil while disabled
	// running holds the done channel of every schedule that may not have
	// exited yet, including ones disabled and then superseded by Enable.
	running []chan struct{}
}

// New creates a disabled Loop trading symbol.
func New(
	cfg Config,
	symbols domain.SymbolSet,
	symbol domain.Symbol,
	prices PriceSource,
	portfolio PortfolioSource,
	executor Executor,
	policy domain.Policy,
	advisory *ledger.AdvisoryLog,
	logger *slog.Logger,
) *Loop {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PolicyTimeout <= 0 {
		cfg.PolicyTimeout = def.PolicyTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	return &Loop{
		cfg:       cfg,
		symbols:   symbols,
		symbol:    symbol,
		prices:    prices,
		portfolio: portfolio,
		executor:  executor,
		policy:    policy,
		advisory:  advisory,
		logger:    logger.With(slog.String("component", "automation")),
	}
}

// OnDecision registers a hook. Call before Enable.
func (l *Loop) OnDecision(h DecisionHook) {
	l.hooks = append(l.hooks, h)
}

// Enable arms the loop: one cycle runs immediately, then one per interval
// until Disable is called or parent is cancelled. It returns false if the
// loop was already armed.
func (l *Loop) Enable(parent context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.running = append(pruneExited(l.running), done)

	l.advisory.Add(fmt.Sprintf("Automation enabled. Monitoring %s with %s policy.", l.symbol, l.policy.Name()), domain.SentimentNeutral)
	l.logger.Info("automation enabled",
		slog.String("symbol", string(l.symbol)),
		slog.Duration("interval", l.cfg.Interval),
	)

	go l.run(ctx, done)
	return true
}

// Disable cancels the schedule. It returns false if the loop was not armed.
func (l *Loop) Disable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return false
	}
	l.cancel()
	l.cancel = nil

	l.advisory.Add("Automation disabled.", domain.SentimentNeutral)
	l.logger.Info("automation disabled")
	return true
}

// Wait blocks until every schedule armed so far has exited, including an
// earlier one still finishing its cycle after a Disable and re-Enable.
func (l *Loop) Wait() {
	l.mu.Lock()
	running := append([]chan struct{}(nil), l.running...)
	l.mu.Unlock()
	for _, done := range running {
		<-done
	}
}

func pruneExited(running []chan struct{}) []chan struct{} {
	kept := running[:0]
	for _, done := range running {
		select {
		case <-done:
		default:
			kept = append(kept, done)
		}
	}
	return kept
}

// Enabled reports whether the loop is armed.
func (l *Loop) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Symbol returns the symbol the loop trades.
func (l *Loop) Symbol() domain.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.symbol
}

// SetSymbol switches the traded symbol; the next cycle uses it.
func (l *Loop) SetSymbol(sym domain.Symbol) error {
	if !l.symbols.Contains(sym) {
		return fmt.Errorf("automation: set symbol: %w: %s", domain.ErrUnknownSymbol, sym)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.symbol = sym
	return nil
}

// Status returns the current loop state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Enabled:  l.cancel != nil,
		Symbol:   l.symbol,
		Interval: l.cfg.Interval.String(),
		Policy:   l.policy.Name(),
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunCycle(ctx)
		}
	}
}

// RunCycle performs a single decision cycle. ctx governs the policy call;
// the executor call runs detached from ctx so that disabling the loop never
// aborts an order in flight.
func (l *Loop) RunCycle(ctx context.Context) CycleResult {
	sym := l.Symbol()
	res := CycleResult{Symbol: sym, Outcome: OutcomeNoData}
	log := l.logger.With(slog.String("symbol", string(sym)))

	snap, ok := l.prices.Snapshot(sym)
	if !ok || len(snap.Series) == 0 || !snap.Known() {
		log.Debug("no price data, skipping cycle")
		return res
	}
	portfolio := l.portfolio.Snapshot()

	l.advisory.Add(fmt.Sprintf("Analyzing %s market structure...", sym), domain.SentimentNeutral)
	res.Decision = l.decide(ctx, domain.DecisionRequest{
		Symbol:       sym,
		Price:        snap.Price,
		RecentPrices: recentPrices(snap.Series, l.cfg.HistoryWindow),
		CashBalance:  portfolio.CashBalance,
	})
	for _, h := range l.hooks {
		h(ctx, sym, res.Decision)
	}

	side, actionable := res.Decision.Action.Side()
	if !actionable || res.Decision.Confidence <= l.cfg.ConfidenceThreshold {
		res.Outcome = OutcomeHold
		l.advisory.Add(fmt.Sprintf("Holding %s. %s", sym, res.Decision.Reason), domain.SentimentNeutral)
		log.Debug("holding",
			slog.String("action", string(res.Decision.Action)),
			slog.Float64("confidence", res.Decision.Confidence),
			slog.String("reason", res.Decision.Reason),
		)
		return res
	}

	amount := l.size(side, sym, snap.Price, portfolio)
	if amount.Mul(snap.Price).LessThanOrEqual(l.cfg.MinNotional) {
		res.Outcome = OutcomeBelowMinimum
		l.advisory.Add(fmt.Sprintf("Signal %s %s ignored, below minimum size.", side, sym), domain.SentimentNeutral)
		log.Info("signal ignored, below minimum size",
			slog.String("side", string(side)),
			slog.String("amount", amount.String()),
		)
		return res
	}

	// Disabled while the policy was thinking: do not start a new order.
	if ctx.Err() != nil {
		res.Outcome = OutcomeCancelled
		return res
	}

	intent := domain.OrderIntent{
		Symbol:      sym,
		Side:        side,
		Amount:      amount,
		Price:       snap.Price,
		IsAutomated: true,
		Reason:      res.Decision.Reason,
	}
	res.Intent = &intent

	report, err := l.executor.Execute(context.WithoutCancel(ctx), intent)
	if err != nil {
		res.Err = err
		res.Outcome = OutcomeFailed
		if domain.IsValidation(err) {
			res.Outcome = OutcomeRejected
		}
		l.advisory.Add(fmt.Sprintf("%s %s not executed: %v", side, sym, err), domain.SentimentNeutral)
		log.Warn("automated order not executed", slog.String("error", err.Error()))
		return res
	}

	res.Outcome = OutcomeFilled
	res.Report = &report
	sentiment := domain.SentimentPositive
	if side == domain.OrderSideSell {
		sentiment = domain.SentimentNegative
	}
	l.advisory.Add(fmt.Sprintf("%s %s @ $%s", side, sym, snap.Price.StringFixed(2)), sentiment)
	return res
}

// decide calls the policy with a timeout and converts any failure into a
// zero-confidence HOLD.
func (l *Loop) decide(ctx context.Context, req domain.DecisionRequest) domain.AiDecision {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.PolicyTimeout)
	defer cancel()

	dec, err := l.policy.Decide(ctx, req)
	if err != nil {
		reason := "Analysis Error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "Analysis Error: policy timed out"
		}
		l.logger.Warn("policy failed, holding",
			slog.String("policy", l.policy.Name()),
			slog.String("error", err.Error()),
		)
		return domain.HoldDecision(reason)
	}
	if dec.Confidence < 0 {
		dec.Confidence = 0
	}
	if dec.Confidence > 100 {
		dec.Confidence = 100
	}
	return dec
}

// size applies the fixed-fraction sizing rule.
func (l *Loop) size(side domain.OrderSide, sym domain.Symbol, price decimal.Decimal, p domain.Portfolio) decimal.Decimal {
	if side == domain.OrderSideBuy {
		return p.CashBalance.Mul(l.cfg.BuyFraction).Div(price)
	}
	return p.Asset(sym).Balance.Mul(l.cfg.SellFraction)
}

func recentPrices(series []domain.PricePoint, n int) []decimal.Decimal {
	if len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]decimal.Decimal, len(series))
	for i, p := range series {
		out[i] = p.Price
	}
	return out
}
