package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/crypto"
	"github.com/alanyoungcy/papertrader/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		require.Equal(t, "1m", r.URL.Query().Get("interval"))
		require.Equal(t, "60", r.URL.Query().Get("limit"))
		// Rows deliberately out of order, with one malformed row.
		fmt.Fprint(w, `[
			[1700000060000,"1","1","1","50010.5","0"],
			[1700000000000,"1","1","1","50000.0","0"],
			["bad"],
			[1700000120000,"1","1","1","0","0"]
		]`)
	}))
	defer srv.Close()

	h := NewHistoryClient(srv.URL, 0, time.Second)
	pts, err := h.FetchHistory(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, pts, 2)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), pts[0].Time)
	require.True(t, pts[0].Price.Equal(decimal.RequireFromString("50000")))
	require.True(t, pts[1].Price.Equal(decimal.RequireFromString("50010.5")))
}

func TestFetchHistoryStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusTeapot, domain.ErrRateLimited},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusBadRequest, domain.ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewHistoryClient(srv.URL, 10, time.Second).FetchHistory(context.Background(), "ETH")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBrokerSubmitSignsRequest(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "key-123", Secret: "secret-456"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, "key-123", r.Header.Get("X-MBX-APIKEY"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body := string(raw)
		parts := strings.SplitN(body, "&signature=", 2)
		require.Len(t, parts, 2)
		require.Equal(t, auth.Sign(parts[0]), parts[1])

		form, err := url.ParseQuery(parts[0])
		require.NoError(t, err)
		require.Equal(t, "SOLUSDT", form.Get("symbol"))
		require.Equal(t, "SELL", form.Get("side"))
		require.Equal(t, "MARKET", form.Get("type"))
		require.Equal(t, "1.5", form.Get("quantity"))
		require.Equal(t, "1700000000000", form.Get("timestamp"))

		fmt.Fprint(w, `{"symbol":"SOLUSDT","orderId":42,"status":"FILLED","executedQty":"1.50000000"}`)
	}))
	defer srv.Close()

	b, err := NewBroker(BrokerConfig{BaseURL: srv.URL, Auth: auth, RatePerSec: 100, Burst: 10}, quietLogger())
	require.NoError(t, err)
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := b.Submit(context.Background(), "SOL", domain.OrderSideSell, decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	require.Equal(t, "42", res.OrderID)
	require.Equal(t, domain.OrderStatusFilled, res.Status)
	require.True(t, res.ExecutedQty.Equal(decimal.RequireFromString("1.5")))
}

func TestBrokerStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"orderId":7,"status":"EXPIRED","executedQty":"0"}`)
	}))
	defer srv.Close()

	b, err := NewBroker(BrokerConfig{BaseURL: srv.URL, Auth: &crypto.HMACAuth{Key: "k", Secret: "s"}}, quietLogger())
	require.NoError(t, err)
	res, err := b.Submit(context.Background(), "BTC", domain.OrderSideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, res.Status)
}

func TestNewBrokerRequiresCredentials(t *testing.T) {
	_, err := NewBroker(BrokerConfig{}, quietLogger())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStreamURL(t *testing.T) {
	got := StreamURL("wss://stream.example:9443/", []domain.Symbol{"BTC", "DOGE"})
	require.Equal(t, "wss://stream.example:9443/stream?streams=btcusdt@miniTicker/dogeusdt@miniTicker", got)
}

func TestParseMiniTicker(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		raw        string
		wantErr    bool
		wantSymbol domain.Symbol
		wantPrice  string
		wantChange string
		wantTime   time.Time
	}{
		{
			name:       "with percent change",
			raw:        `{"stream":"btcusdt@miniTicker","data":{"s":"BTCUSDT","c":"64000.10","P":"-1.25","E":1700000000000}}`,
			wantSymbol: "BTC",
			wantPrice:  "64000.10",
			wantChange: "-1.25",
			wantTime:   time.UnixMilli(1700000000000).UTC(),
		},
		{
			name:       "change derived from open",
			raw:        `{"stream":"ethusdt@miniTicker","data":{"s":"ETHUSDT","c":"110","o":"100"}}`,
			wantSymbol: "ETH",
			wantPrice:  "110",
			wantChange: "10",
			wantTime:   now,
		},
		{name: "bad json", raw: `{"stream":`, wantErr: true},
		{name: "missing close", raw: `{"data":{"s":"BTCUSDT"}}`, wantErr: true},
		{name: "zero price", raw: `{"data":{"s":"BTCUSDT","c":"0"}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseMiniTicker([]byte(tt.raw), now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSymbol, u.Symbol)
			require.True(t, u.Price.Equal(decimal.RequireFromString(tt.wantPrice)))
			require.True(t, u.Change24h.Equal(decimal.RequireFromString(tt.wantChange)), "change %s", u.Change24h)
			require.Equal(t, tt.wantTime, u.Time)
		})
	}
}

func TestStreamReadLoop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stream", r.URL.Path)
		require.Equal(t, "btcusdt@miniTicker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@miniTicker","data":{"s":"BTCUSDT","c":"65000","P":"2.5"}}`))
		// Wait for the client to hang up.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s, err := Dial(context.Background(), wsURL, []domain.Symbol{"BTC"})
	require.NoError(t, err)

	got := make(chan domain.PriceUpdate, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- s.ReadLoop(func(u domain.PriceUpdate) { got <- u })
	}()

	select {
	case u := <-got:
		require.Equal(t, domain.Symbol("BTC"), u.Symbol)
		require.True(t, u.Price.Equal(decimal.NewFromInt(65000)))
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		require.ErrorIs(t, err, domain.ErrWSDisconnect)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
}
