package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// DefaultKlineLimit is the number of one-minute candles requested per symbol.
const DefaultKlineLimit = 60

// HistoryClient fetches one-minute klines and turns their closes into a
// seed series. It implements domain.HistorySource.
type HistoryClient struct {
	rest  restClient
	limit int
}

// NewHistoryClient creates a kline client against baseURL.
func NewHistoryClient(baseURL string, limit int, timeout time.Duration) *HistoryClient {
	if limit <= 0 {
		limit = DefaultKlineLimit
	}
	return &HistoryClient{rest: newRESTClient(baseURL, timeout), limit: limit}
}

// FetchHistory returns the closes of the last limit one-minute candles for
// symbol, oldest first, stamped with each candle's open time.
func (h *HistoryClient) FetchHistory(ctx context.Context, symbol domain.Symbol) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Pair())
	params.Set("interval", "1m")
	params.Set("limit", strconv.Itoa(h.limit))

	body, err := h.rest.get(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	points, err := ParseKlines(body)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}
	return points, nil
}

// ParseKlines decodes the kline array format
// [openTime, open, high, low, close, volume, ...]. Rows that cannot be
// parsed or carry a non-positive close are skipped.
func ParseKlines(body []byte) ([]domain.PricePoint, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			continue
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil || !price.IsPositive() {
			continue
		}
		points = append(points, domain.PricePoint{
			Time:  time.UnixMilli(openTime).UTC(),
			Price: price,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}
