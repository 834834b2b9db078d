package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func TestKeys(t *testing.T) {
	c := &Client{prefix: DefaultKeyPrefix}
	require.Equal(t, "papertrader:price:BTC", NewPriceCache(c).priceKey("BTC"))
	require.Equal(t, "papertrader:ratelimit:orders:manual", c.key("ratelimit", "orders:manual"))
	require.Equal(t, "papertrader:stream:orders", c.key(domain.StreamOrders))
}

func TestPriceFieldsRoundTrip(t *testing.T) {
	ts := time.Unix(0, 1700000000123456789)
	fields := priceFields(decimal.RequireFromString("64000.125"), ts)

	vals := map[string]string{}
	for k, v := range fields {
		vals[k] = v.(string)
	}
	price, got, err := parsePriceFields(vals)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("64000.125")))
	require.True(t, got.Equal(ts))
}

func TestParsePriceFieldsErrors(t *testing.T) {
	tests := []struct {
		name string
		vals map[string]string
		want error
	}{
		{"empty hash", map[string]string{}, domain.ErrNotFound},
		{"missing ts", map[string]string{"price": "1"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parsePriceFields(tt.vals)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, _, err := parsePriceFields(map[string]string{"price": "abc", "ts": "1"})
	require.ErrorContains(t, err, "parse price")
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	require.True(t, strings.Contains(slidingWindowLua, "ZREMRANGEBYSCORE"))
	require.True(t, strings.Contains(slidingWindowLua, "ARGV[4]"))
}
