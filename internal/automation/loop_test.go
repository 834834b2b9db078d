package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
	"github.com/alanyoungcy/papertrader/internal/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubPolicy struct {
	mu       sync.Mutex
	decision domain.AiDecision
	err      error
	calls    int
	lastReq  domain.DecisionRequest
}

func (p *stubPolicy) Name() string { return "stub" }

func (p *stubPolicy) Decide(_ context.Context, req domain.DecisionRequest) (domain.AiDecision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastReq = req
	return p.decision, p.err
}

func (p *stubPolicy) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingExecutor struct {
	mu      sync.Mutex
	intents []domain.OrderIntent
	err     error
	gate    chan struct{}
	ctxErr  error
	entered chan struct{}
	once    sync.Once
}

func (e *recordingExecutor) Execute(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionReport, error) {
	if e.entered != nil {
		e.once.Do(func() { close(e.entered) })
	}
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctxErr = ctx.Err()
	e.intents = append(e.intents, intent)
	if e.err != nil {
		return domain.ExecutionReport{}, e.err
	}
	return domain.ExecutionReport{Order: domain.Order{ID: "o1", Symbol: intent.Symbol, Side: intent.Side}}, nil
}

func (e *recordingExecutor) Intents() []domain.OrderIntent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.OrderIntent(nil), e.intents...)
}

type fixture struct {
	loop     *Loop
	prices   *market.PriceStore
	ledger   *ledger.Ledger
	policy   *stubPolicy
	exec     *recordingExecutor
	advisory *ledger.AdvisoryLog
}

func newFixture(t *testing.T, cash string) *fixture {
	t.Helper()
	symbols := domain.NewSymbolSet(domain.DefaultSymbols)
	f := &fixture{
		prices:   market.NewPriceStore(symbols, 0, 0),
		ledger:   ledger.New(symbols, d(cash)),
		policy:   &stubPolicy{},
		exec:     &recordingExecutor{},
		advisory: ledger.NewAdvisoryLog(),
	}
	cfg := DefaultConfig()
	cfg.Interval = 20 * time.Millisecond
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.loop = New(cfg, symbols, "BTC", f.prices, f.ledger, f.exec, f.policy, f.advisory, logger)
	return f
}

func (f *fixture) feed(prices ...string) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		f.prices.ApplyUpdate(domain.PriceUpdate{Symbol: "BTC", Price: d(p), Time: t0.Add(time.Duration(i) * time.Minute)})
	}
}

func TestCycleThresholds(t *testing.T) {
	tests := []struct {
		name     string
		decision domain.AiDecision
		want     Outcome
	}{
		{"low confidence buy", domain.AiDecision{Action: domain.ActionBuy, Confidence: 50}, OutcomeHold},
		{"confidence at threshold", domain.AiDecision{Action: domain.ActionBuy, Confidence: 65}, OutcomeHold},
		{"confident hold", domain.AiDecision{Action: domain.ActionHold, Confidence: 99}, OutcomeHold},
		{"confident buy", domain.AiDecision{Action: domain.ActionBuy, Confidence: 90}, OutcomeFilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "100000")
			f.feed("50000")
			f.policy.decision = tt.decision

			res := f.loop.RunCycle(context.Background())
			require.Equal(t, tt.want, res.Outcome)
			if tt.want == OutcomeFilled {
				require.Len(t, f.exec.Intents(), 1)
			} else {
				require.Empty(t, f.exec.Intents())
			}
		})
	}
}

func TestBuySizingUsesTenPercentOfCash(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("49000", "50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionBuy, Confidence: 90, Reason: "breakout"}

	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeFilled, res.Outcome)

	intents := f.exec.Intents()
	require.Len(t, intents, 1)
	in := intents[0]
	require.Equal(t, domain.OrderSideBuy, in.Side)
	require.True(t, in.Amount.Equal(d("0.2")), "amount %s", in.Amount)
	require.True(t, in.Price.Equal(d("50000")))
	require.True(t, in.IsAutomated)
	require.Equal(t, "breakout", in.Reason)

	require.Len(t, f.policy.lastReq.RecentPrices, 2)
	require.True(t, f.policy.lastReq.CashBalance.Equal(d("100000")))
}

func TestSellSizingUsesHalfTheHolding(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	_, err := f.ledger.Commit(domain.OrderSideBuy, "BTC", d("1"), d("50000"))
	require.NoError(t, err)
	f.policy.decision = domain.AiDecision{Action: domain.ActionSell, Confidence: 80}

	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeFilled, res.Outcome)
	require.True(t, f.exec.Intents()[0].Amount.Equal(d("0.5")))
}

func TestBelowMinimumNotionalIsSkipped(t *testing.T) {
	// 10% of 30 cash is a notional of 3.
	f := newFixture(t, "30")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionBuy, Confidence: 90}

	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeBelowMinimum, res.Outcome)
	require.Empty(t, f.exec.Intents())
	require.Contains(t, f.advisory.List()[0].Message, "below minimum size")
}

func TestSellWithoutHoldingIsSkipped(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionSell, Confidence: 90}

	require.Equal(t, OutcomeBelowMinimum, f.loop.RunCycle(context.Background()).Outcome)
}

func TestPolicyErrorDegradesToHold(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.err = errors.New("quota exceeded")

	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeHold, res.Outcome)
	require.Equal(t, domain.ActionHold, res.Decision.Action)
	require.Zero(t, res.Decision.Confidence)
	require.Equal(t, "Analysis Error", res.Decision.Reason)
}

func TestNoHistorySkipsCycle(t *testing.T) {
	f := newFixture(t, "100000")
	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeNoData, res.Outcome)
	require.Zero(t, f.policy.Calls())
}

func TestRejectionIsReported(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionBuy, Confidence: 90}
	f.exec.err = &domain.ValidationError{Symbol: "BTC", Side: domain.OrderSideBuy, Err: domain.ErrInsufficientFunds}

	res := f.loop.RunCycle(context.Background())
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.ErrorIs(t, res.Err, domain.ErrInsufficientFunds)
}

func TestDecisionHooks(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionHold, Confidence: 10, Reason: "flat"}

	var got []domain.AiDecision
	f.loop.OnDecision(func(_ context.Context, _ domain.Symbol, dec domain.AiDecision) { got = append(got, dec) })
	f.loop.RunCycle(context.Background())
	require.Len(t, got, 1)
	require.Equal(t, "flat", got[0].Reason)
}

func TestEnableRunsImmediatelyAndDisableStops(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.HoldDecision("flat")

	require.True(t, f.loop.Enable(context.Background()))
	require.False(t, f.loop.Enable(context.Background()), "already armed")
	require.True(t, f.loop.Enabled())

	require.Eventually(t, func() bool { return f.policy.Calls() >= 2 }, time.Second, 5*time.Millisecond)

	require.True(t, f.loop.Disable())
	require.False(t, f.loop.Disable())
	f.loop.Wait()
	calls := f.policy.Calls()

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, calls, f.policy.Calls(), "no cycle may run after disable")
	require.False(t, f.loop.Status().Enabled)
}

func TestDisableDoesNotCancelInFlightOrder(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionBuy, Confidence: 90}
	f.exec.gate = make(chan struct{})
	f.exec.entered = make(chan struct{})

	f.loop.Enable(context.Background())
	<-f.exec.entered
	f.loop.Disable()
	close(f.exec.gate)
	f.loop.Wait()

	require.Len(t, f.exec.Intents(), 1)
	require.NoError(t, f.exec.ctxErr, "executor context must survive disable")
}

func TestWaitCoversScheduleSupersededByReEnable(t *testing.T) {
	f := newFixture(t, "100000")
	f.feed("50000")
	f.policy.decision = domain.AiDecision{Action: domain.ActionBuy, Confidence: 90}
	f.exec.gate = make(chan struct{})
	f.exec.entered = make(chan struct{})

	require.True(t, f.loop.Enable(context.Background()))
	<-f.exec.entered
	require.True(t, f.loop.Disable())

	// The second schedule only holds, so it exits as soon as it is disabled.
	f.policy.mu.Lock()
	f.policy.decision = domain.HoldDecision("flat")
	f.policy.mu.Unlock()
	require.True(t, f.loop.Enable(context.Background()))
	require.True(t, f.loop.Disable())

	waited := make(chan struct{})
	go func() {
		f.loop.Wait()
		close(waited)
	}()

	require.Never(t, func() bool {
		select {
		case <-waited:
			return true
		default:
			return false
		}
	}, 60*time.Millisecond, 5*time.Millisecond, "first schedule is still inside its cycle")

	close(f.exec.gate)
	require.Eventually(t, func() bool {
		select {
		case <-waited:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Len(t, f.exec.Intents(), 1)
}

func TestSetSymbol(t *testing.T) {
	f := newFixture(t, "100000")
	require.ErrorIs(t, f.loop.SetSymbol("XRP"), domain.ErrUnknownSymbol)
	require.NoError(t, f.loop.SetSymbol("ETH"))
	require.Equal(t, domain.Symbol("ETH"), f.loop.Symbol())
}
