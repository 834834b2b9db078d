package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/papertrader/internal/crypto"
	"github.com/alanyoungcy/papertrader/internal/domain"
)

const (
	defaultRecvWindow = 5000
	quantityPrecision = 8
)

// BrokerConfig configures the signed order client.
type BrokerConfig struct {
	BaseURL    string
	Auth       *crypto.HMACAuth
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// Broker submits signed MARKET orders to the spot order endpoint. Pointed at
// the spot testnet it acts as a realistic acknowledgement source for the
// simulator. It implements domain.Broker.
type Broker struct {
	rest    restClient
	auth    *crypto.HMACAuth
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewBroker creates a Broker. Credentials are required.
func NewBroker(cfg BrokerConfig, logger *slog.Logger) (*Broker, error) {
	if !cfg.Auth.Configured() {
		return nil, fmt.Errorf("binance: broker: %w: api key and secret required", domain.ErrUnauthorized)
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Broker{
		rest:    newRESTClient(cfg.BaseURL, cfg.Timeout),
		auth:    cfg.Auth,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  logger.With(slog.String("component", "binance_broker")),
		now:     time.Now,
	}, nil
}

// orderResponse is the subset of the order acknowledgement we use.
type orderResponse struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
}

// Submit places a MARKET order for quantity units of symbol.
func (b *Broker) Submit(ctx context.Context, symbol domain.Symbol, side domain.OrderSide, quantity decimal.Decimal) (domain.ExecutionResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("binance: submit: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", symbol.Pair())
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", quantity.Truncate(quantityPrecision).String())
	params.Set("newOrderRespType", "RESULT")
	params.Set("recvWindow", strconv.Itoa(defaultRecvWindow))
	body := b.auth.SignQueryAt(params, b.now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.rest.baseURL+"/api/v3/order", strings.NewReader(body))
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("binance: submit: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-MBX-APIKEY", b.auth.Key)

	respBody, err := b.rest.do(req)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("binance: submit %s %s: %w", side, symbol, err)
	}

	var ack orderResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("binance: decode order ack: %w", err)
	}
	executed, err := decimal.NewFromString(ack.ExecutedQty)
	if err != nil {
		executed = decimal.Zero
	}

	res := domain.ExecutionResult{
		OrderID:     strconv.FormatInt(ack.OrderID, 10),
		Status:      mapOrderStatus(ack.Status),
		ExecutedQty: executed,
	}
	b.logger.Info("order acknowledged",
		slog.String("symbol", string(symbol)),
		slog.String("side", string(side)),
		slog.String("order_id", res.OrderID),
		slog.String("status", ack.Status),
	)
	return res, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH", "PENDING_CANCEL":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusPending
	}
}
