package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/automation"
	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/service"
)

type stubOrders struct {
	mu     sync.Mutex
	err    error
	ctxErr error
	calls  int
}

func (s *stubOrders) PlaceOrder(ctx context.Context, req service.ManualOrder) (domain.ExecutionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return domain.ExecutionReport{}, s.err
	}
	return domain.ExecutionReport{Order: domain.Order{ID: "o1", Symbol: req.Symbol, Side: req.Side}}, nil
}

func (s *stubOrders) History(domain.OrderFilter) []domain.Order { return nil }

func newOrderHandler(orders OrderService) *OrderHandler {
	return NewOrderHandler(orders, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postOrder(ctx context.Context, h *OrderHandler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"symbol":"BTC","side":"BUY"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, req)
	return rec
}

func TestPlaceOrderSurvivesClientDisconnect(t *testing.T) {
	orders := &stubOrders{}
	h := newOrderHandler(orders)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := postOrder(ctx, h)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, orders.calls)
	require.NoError(t, orders.ctxErr, "submission must not inherit the request cancellation")
}

func TestPlaceOrderHaltedEngine(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"engine halted", domain.ErrEngineHalted},
		{"consistency error", &domain.ConsistencyError{OrderID: "o1", Err: errors.New("duplicate order id")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newOrderHandler(&stubOrders{err: tt.err})

			rec := postOrder(context.Background(), h)
			require.Equal(t, http.StatusServiceUnavailable, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, "trading halted", body["error"])
		})
	}
}

type haltedEngine struct{ err error }

func (e haltedEngine) Halted() error { return e.err }

type stoppedLoop struct{}

func (stoppedLoop) Status() automation.Status {
	return automation.Status{Enabled: false, Symbol: "BTC"}
}

func TestStatusReportsHalt(t *testing.T) {
	cerr := &domain.ConsistencyError{OrderID: "o1", Err: errors.New("duplicate order id")}
	h := NewStatusHandler("paper", time.Now(), nil, haltedEngine{err: cerr}, stoppedLoop{})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.EngineHalted)
	require.Equal(t, cerr.Error(), body.HaltReason)
	require.NotNil(t, body.Automation)
	require.False(t, body.Automation.Enabled)

	h = NewStatusHandler("paper", time.Now(), nil, haltedEngine{}, stoppedLoop{})
	require.False(t, h.Snapshot().EngineHalted)
}
