// Package executor implements the execution engine: the single serialization
// point that turns order intents into broker submissions, ledger commits and
// order records.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
)

// PriceReader exposes the current quote of a symbol. A zero price means the
// price is unknown and the symbol cannot be traded.
type PriceReader interface {
	Price(symbol domain.Symbol) decimal.Decimal
}

// Event describes the terminal state of one intent.
type Event struct {
	State  domain.ExecutionState
	Intent domain.OrderIntent
	Report *domain.ExecutionReport // set when State is StateFilled
	Err    error                   // set for rejected, failed and fatal outcomes
}

// Observer is notified after every intent reaches a terminal state. Observers
// run outside the engine lock, on the submitting goroutine.
type Observer interface {
	OnExecution(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// OnExecution calls f.
func (f ObserverFunc) OnExecution(ctx context.Context, ev Event) { f(ctx, ev) }

// Options tune an Engine. Zero values select defaults.
type Options struct {
	BrokerTimeout   time.Duration
	DedupTTL        time.Duration
	CleanupInterval time.Duration
}

// Engine validates intents against the ledger, submits them to the broker and
// commits fills. Intents are processed one at a time from validation through
// commit, so no two check-and-commit sequences interleave. Price ingestion and
// portfolio reads never take the engine lock.
type Engine struct {
	ledger    *ledger.Ledger
	book      *ledger.OrderBook
	prices    PriceReader
	broker    domain.Broker
	dedup     *Dedup
	observers []Observer
	logger    *slog.Logger

	brokerTimeout   time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	newID           func() string

	mu     sync.Mutex
	halted error
	fatal  chan error
}

// NewEngine creates an Engine over the given ledger, order book and broker.
func NewEngine(
	l *ledger.Ledger,
	book *ledger.OrderBook,
	prices PriceReader,
	broker domain.Broker,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if opts.BrokerTimeout <= 0 {
		opts.BrokerTimeout = 10 * time.Second
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 2 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 30 * time.Second
	}
	return &Engine{
		ledger:          l,
		book:            book,
		prices:          prices,
		broker:          broker,
		dedup:           NewDedup(opts.DedupTTL),
		logger:          logger.With(slog.String("component", "executor")),
		brokerTimeout:   opts.BrokerTimeout,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
		newID:           uuid.NewString,
		fatal:           make(chan error, 1),
	}
}

// AddObserver registers an observer. Call before the engine receives intents.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Run performs housekeeping until ctx is cancelled. It returns early with
// the ConsistencyError if the engine halts.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-e.fatal:
			return err
		case <-cleanupTicker.C:
			e.dedup.Cleanup()
			e.logger.Debug("dedup cleanup", slog.Int("remembered_ids", e.dedup.Len()))
		}
	}
}

// Execute drives one intent through Validating, Submitting and Committing.
//
// It returns a *domain.ValidationError when the intent is rejected, a
// *domain.ExternalCallError when the broker call fails, and a
// *domain.ConsistencyError when the ledger and order book could not be kept
// in step; after the latter every further call returns ErrEngineHalted.
func (e *Engine) Execute(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionReport, error) {
	ev := e.execute(ctx, intent)
	for _, o := range e.observers {
		o.OnExecution(ctx, ev)
	}
	if ev.Err != nil {
		return domain.ExecutionReport{}, ev.Err
	}
	return *ev.Report, nil
}

func (e *Engine) execute(ctx context.Context, intent domain.OrderIntent) Event {
	log := e.logger.With(
		slog.String("symbol", string(intent.Symbol)),
		slog.String("side", string(intent.Side)),
		slog.String("amount", intent.Amount.String()),
		slog.String("price", intent.Price.String()),
		slog.Bool("automated", intent.IsAutomated),
	)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return Event{State: domain.StateFailed, Intent: intent, Err: fmt.Errorf("%w: %v", domain.ErrEngineHalted, e.halted)}
	}

	// 1. Validating.
	log.Debug("intent state", slog.String("state", string(domain.StateValidating)))
	if err := e.validate(intent); err != nil {
		verr := &domain.ValidationError{Symbol: intent.Symbol, Side: intent.Side, Err: err}
		if intent.IsAutomated {
			log.Info("automated intent rejected", slog.String("reason", err.Error()))
		} else {
			log.Warn("order rejected", slog.String("reason", err.Error()))
		}
		return Event{State: domain.StateRejected, Intent: intent, Err: verr}
	}

	// 2. Submitting.
	log.Debug("intent state", slog.String("state", string(domain.StateSubmitting)))
	res, err := e.submit(ctx, intent)
	if err != nil {
		log.Error("order submission failed", slog.String("error", err.Error()))
		return Event{State: domain.StateFailed, Intent: intent, Err: &domain.ExternalCallError{Op: "broker submit", Err: err}}
	}

	// 3. Committing.
	log.Debug("intent state", slog.String("state", string(domain.StateCommitting)))
	order := domain.Order{
		ID:          e.newID(),
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Price:       intent.Price,
		Amount:      intent.Amount,
		Total:       intent.Notional(),
		Timestamp:   e.now().UTC(),
		Status:      domain.OrderStatusFilled,
		IsAutomated: intent.IsAutomated,
		Reason:      intent.Reason,
		BrokerID:    res.OrderID,
	}
	portfolio, err := e.commit(order)
	if err != nil {
		cerr := &domain.ConsistencyError{OrderID: order.ID, Err: err}
		e.halt(cerr)
		log.Error("execution engine halted", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		return Event{State: domain.StateFailed, Intent: intent, Err: cerr}
	}

	if e.tracksClientID(intent) {
		e.dedup.Record(intent.ClientOrderID)
	}

	// 4. Filled.
	log.Info("order filled",
		slog.String("order_id", order.ID),
		slog.String("broker_order_id", res.OrderID),
		slog.String("total", order.Total.String()),
	)
	return Event{
		State:  domain.StateFilled,
		Intent: intent,
		Report: &domain.ExecutionReport{Order: order, Portfolio: portfolio, Broker: res},
	}
}

// validate runs the pure checks. The caller holds e.mu.
func (e *Engine) validate(intent domain.OrderIntent) error {
	if intent.Side != domain.OrderSideBuy && intent.Side != domain.OrderSideSell {
		return domain.ErrInvalidOrder
	}
	if !intent.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !intent.Price.IsPositive() || !e.prices.Price(intent.Symbol).IsPositive() {
		return domain.ErrPriceUnknown
	}
	if err := e.ledger.ReserveCheck(intent.Side, intent.Symbol, intent.Amount, intent.Price); err != nil {
		return err
	}
	if e.tracksClientID(intent) && e.dedup.Seen(intent.ClientOrderID) {
		return domain.ErrDuplicateOrder
	}
	return nil
}

// tracksClientID reports whether intent is subject to client order id dedup.
func (e *Engine) tracksClientID(intent domain.OrderIntent) bool {
	return !intent.IsAutomated && intent.ClientOrderID != ""
}

func (e *Engine) submit(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.brokerTimeout)
	defer cancel()

	res, err := e.broker.Submit(ctx, intent.Symbol, intent.Side, intent.Amount)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if res.Status != domain.OrderStatusFilled {
		return domain.ExecutionResult{}, fmt.Errorf("broker returned status %q for order %s", res.Status, res.OrderID)
	}
	return res, nil
}

// commit applies the ledger mutation and the order record as one unit. If the
// order cannot be recorded the ledger is rolled back. The caller holds e.mu.
func (e *Engine) commit(order domain.Order) (domain.Portfolio, error) {
	before := e.ledger.Snapshot()
	portfolio, err := e.ledger.Commit(order.Side, order.Symbol, order.Amount, order.Price)
	if err != nil {
		return domain.Portfolio{}, err
	}
	if err := e.book.Append(order); err != nil {
		e.ledger.Restore(before)
		return domain.Portfolio{}, errors.Join(err, errors.New("ledger rolled back"))
	}
	return portfolio, nil
}

// halt stops the engine. The caller holds e.mu.
func (e *Engine) halt(err error) {
	e.halted = err
	select {
	case e.fatal <- err:
	default:
	}
}

// Halted returns the error that halted the engine, or nil.
func (e *Engine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}
