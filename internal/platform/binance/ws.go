package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// TickerHandler is called for every decoded miniTicker update.
type TickerHandler func(domain.PriceUpdate)

// StreamURL returns the combined-stream URL subscribing to the miniTicker of
// each symbol, e.g. {ws}/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker.
func StreamURL(wsURL string, symbols []domain.Symbol) string {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s.Pair()) + "@miniTicker"
	}
	return strings.TrimRight(wsURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Stream is one live combined-stream connection.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial opens the combined stream for symbols.
func Dial(ctx context.Context, wsURL string, symbols []domain.Symbol) (*Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, StreamURL(wsURL, symbols), nil)
	if err != nil {
		return nil, fmt.Errorf("binance/ws: connect: %w", err)
	}

	s := &Stream{conn: conn, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	go s.pingLoop()
	return s, nil
}

// ReadLoop decodes messages and calls handler until the connection fails or
// Close is called. Malformed messages are dropped. It always returns a
// non-nil error wrapping domain.ErrWSDisconnect.
func (s *Stream) ReadLoop(handler TickerHandler) error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return fmt.Errorf("binance/ws: %w: closed", domain.ErrWSDisconnect)
			default:
			}
			return fmt.Errorf("binance/ws: %w: %v", domain.ErrWSDisconnect, err)
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		u, err := ParseMiniTicker(raw, time.Now())
		if err != nil {
			continue
		}
		handler(u)
	}
}

// Close sends a close frame and tears down the connection. Safe to call
// more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// miniTickerEnvelope is the combined-stream wrapper {stream, data}.
type miniTickerEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
		Open      string `json:"o"`
		ChangePct string `json:"P"`
	} `json:"data"`
}

var errBadTicker = errors.New("malformed miniTicker")

// ParseMiniTicker decodes one combined-stream message. The 24h change is
// taken from P when present and otherwise derived from open and close.
// now stamps messages that carry no event time.
func ParseMiniTicker(raw []byte, now time.Time) (domain.PriceUpdate, error) {
	var env miniTickerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("%w: %v", errBadTicker, err)
	}
	if env.Data.Symbol == "" || env.Data.Close == "" {
		return domain.PriceUpdate{}, errBadTicker
	}

	sym, err := domain.ParseSymbol(env.Data.Symbol)
	if err != nil {
		return domain.PriceUpdate{}, err
	}
	price, err := decimal.NewFromString(env.Data.Close)
	if err != nil || !price.IsPositive() {
		return domain.PriceUpdate{}, errBadTicker
	}

	change := decimal.Zero
	if env.Data.ChangePct != "" {
		if c, err := decimal.NewFromString(env.Data.ChangePct); err == nil {
			change = c
		}
	} else if open, err := decimal.NewFromString(env.Data.Open); err == nil && open.IsPositive() {
		change = price.Sub(open).Div(open).Mul(decimal.NewFromInt(100)).Round(2)
	}

	ts := now
	if env.Data.EventTime > 0 {
		ts = time.UnixMilli(env.Data.EventTime)
	}
	return domain.PriceUpdate{
		Symbol:    sym,
		Price:     price,
		Change24h: change,
		Time:      ts.UTC(),
	}, nil
}
