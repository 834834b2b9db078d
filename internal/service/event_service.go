package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/executor"
	"github.com/alanyoungcy/papertrader/internal/notify"
)

const notifyTimeout = 10 * time.Second

// EventService fans execution outcomes, policy decisions and feed state out
// to the signal bus, the order archive, the audit log and chat
// notifications. Every sink is optional. It implements executor.Observer.
type EventService struct {
	bus      domain.SignalBus
	orders   domain.OrderStore
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewEventService creates an EventService.
func NewEventService(
	bus domain.SignalBus,
	orders domain.OrderStore,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		bus:      bus,
		orders:   orders,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "event_service")),
	}
}

// OnExecution records the terminal state of an intent.
func (s *EventService) OnExecution(ctx context.Context, ev executor.Event) {
	ctx = context.WithoutCancel(ctx)
	in := ev.Intent

	switch ev.State {
	case domain.StateFilled:
		order := ev.Report.Order
		s.publish(ctx, domain.ChannelOrders, order)
		s.appendStream(ctx, domain.StreamOrders, order)
		if s.orders != nil {
			if err := s.orders.Create(ctx, order); err != nil {
				s.logger.WarnContext(ctx, "archive order failed",
					slog.String("order_id", order.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.log(ctx, "order_filled", map[string]any{
			"order_id":     order.ID,
			"symbol":       order.Symbol,
			"side":         order.Side,
			"amount":       order.Amount.String(),
			"price":        order.Price.String(),
			"total":        order.Total.String(),
			"is_automated": order.IsAutomated,
			"broker_id":    order.BrokerID,
		})
		kind := "manual"
		if order.IsAutomated {
			kind = "automated"
		}
		s.notify(ctx, notify.EventOrderFilled, "Order filled",
			fmt.Sprintf("%s %s %s @ %s (%s)", order.Side, order.Amount.StringFixed(6), order.Symbol, order.Price.StringFixed(2), kind))

	case domain.StateRejected:
		s.log(ctx, "order_rejected", intentDetail(in, ev.Err))

	case domain.StateFailed:
		var cerr *domain.ConsistencyError
		if errors.As(ev.Err, &cerr) {
			s.log(ctx, "consistency_error", intentDetail(in, ev.Err))
			s.notify(ctx, notify.EventConsistencyError, "Execution engine halted", ev.Err.Error())
			return
		}
		s.log(ctx, "order_failed", intentDetail(in, ev.Err))
		s.notify(ctx, notify.EventOrderFailed, "Order failed",
			fmt.Sprintf("%s %s %s: %v", in.Side, in.Amount.StringFixed(6), in.Symbol, ev.Err))
	}
}

// OnDecision publishes a policy decision. Actionable decisions are audited.
func (s *EventService) OnDecision(ctx context.Context, symbol domain.Symbol, dec domain.AiDecision) {
	s.publish(ctx, domain.ChannelDecisions, struct {
		Symbol domain.Symbol `json:"symbol"`
		domain.AiDecision
		Time time.Time `json:"time"`
	}{symbol, dec, time.Now().UTC()})

	if dec.Action != domain.ActionHold {
		s.log(ctx, "decision", map[string]any{
			"symbol":     symbol,
			"action":     dec.Action,
			"confidence": dec.Confidence,
			"reason":     dec.Reason,
		})
	}
}

// OnFeedState publishes a connection state change on the status channel.
func (s *EventService) OnFeedState(ctx context.Context, state domain.ConnectionState) {
	s.publish(ctx, domain.ChannelStatus, map[string]any{
		"feed": state,
		"time": time.Now().UTC(),
	})
}

// Wait blocks until in-flight notifications have been delivered.
func (s *EventService) Wait() {
	s.wg.Wait()
}

func (s *EventService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func (s *EventService) appendStream(ctx context.Context, stream string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.bus.StreamAppend(ctx, stream, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed", slog.String("stream", stream), slog.String("error", err.Error()))
	}
}

func (s *EventService) log(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// notify delivers asynchronously so slow chat APIs never hold up the
// submitting goroutine.
func (s *EventService) notify(ctx context.Context, event, title, message string) {
	if !s.notifier.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		_ = s.notifier.Notify(nctx, event, title, message)
	}()
}

func intentDetail(in domain.OrderIntent, err error) map[string]any {
	d := map[string]any{
		"symbol":       in.Symbol,
		"side":         in.Side,
		"amount":       in.Amount.String(),
		"price":        in.Price.String(),
		"is_automated": in.IsAutomated,
	}
	if err != nil {
		d["error"] = err.Error()
	}
	return d
}
