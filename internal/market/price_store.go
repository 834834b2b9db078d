// Package market holds live market state: the latest quote and a bounded,
// time-bucketed price history per symbol.
package market

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

const (
	// DefaultHistorySize is the maximum number of points kept per symbol.
	DefaultHistorySize = 50
	// DefaultBucket is the time resolution of a history point.
	DefaultBucket = time.Minute
)

type series struct {
	price     decimal.Decimal
	change24h decimal.Decimal
	points    []domain.PricePoint
	seeded    bool
}

// PriceStore keeps the current price, 24h change and a bounded history for
// every supported symbol. It is safe for concurrent use; readers always get
// copies.
type PriceStore struct {
	symbols  domain.SymbolSet
	size     int
	bucket   time.Duration
	data     map[domain.Symbol]*series
	mu       sync.RWMutex
	handlers []func(domain.PriceUpdate)
}

// NewPriceStore creates a store for the given symbols. Every symbol starts
// with an empty history and a zero (unknown) price. Non-positive size or
// bucket fall back to the defaults.
func NewPriceStore(symbols domain.SymbolSet, size int, bucket time.Duration) *PriceStore {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	ps := &PriceStore{
		symbols: symbols,
		size:    size,
		bucket:  bucket,
		data:    make(map[domain.Symbol]*series, symbols.Len()),
	}
	for _, s := range symbols.List() {
		ps.data[s] = &series{}
	}
	return ps
}

// OnUpdate registers fn to be called after every applied tick. Handlers run
// on the caller's goroutine outside the store lock and must not block.
// Register handlers before the feed starts.
func (ps *PriceStore) OnUpdate(fn func(domain.PriceUpdate)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers = append(ps.handlers, fn)
}

// ApplyUpdate merges a tick into the symbol's history. A tick in the same
// bucket as the last point replaces that point; otherwise it is appended and
// the oldest point is evicted once the series is full. Ticks for unknown
// symbols or with a non-positive price are dropped and false is returned.
func (ps *PriceStore) ApplyUpdate(u domain.PriceUpdate) bool {
	if !u.Price.IsPositive() {
		return false
	}
	if u.Time.IsZero() {
		u.Time = time.Now().UTC()
	}

	ps.mu.Lock()
	s, ok := ps.data[u.Symbol]
	if !ok {
		ps.mu.Unlock()
		return false
	}
	s.price = u.Price
	s.change24h = u.Change24h
	ps.merge(s, domain.PricePoint{Time: u.Time.Truncate(ps.bucket), Price: u.Price})
	handlers := ps.handlers
	ps.mu.Unlock()

	for _, fn := range handlers {
		fn(u)
	}
	return true
}

// merge applies the bucketing rule. The caller must hold ps.mu.
func (ps *PriceStore) merge(s *series, pt domain.PricePoint) {
	n := len(s.points)
	if n > 0 {
		last := s.points[n-1]
		// Late ticks collapse into the newest bucket so the series stays
		// time-ordered.
		if !pt.Time.After(last.Time) {
			s.points[n-1] = domain.PricePoint{Time: last.Time, Price: pt.Price}
			return
		}
	}
	s.points = append(s.points, pt)
	if len(s.points) > ps.size {
		s.points = append(s.points[:0:0], s.points[len(s.points)-ps.size:]...)
	}
}

// SeedHistory bulk-loads historical points for a symbol. It only takes
// effect once per symbol; later calls return false. Points are sorted and
// bucketed. Seeded points that are not older than ticks already received are
// ignored, and the current price is only set from the seed while it is still
// unknown.
func (ps *PriceStore) SeedHistory(symbol domain.Symbol, points []domain.PricePoint) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s, ok := ps.data[symbol]
	if !ok || s.seeded {
		return false
	}
	s.seeded = true

	seed := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Price.IsPositive() {
			seed = append(seed, domain.PricePoint{Time: p.Time.Truncate(ps.bucket), Price: p.Price})
		}
	}
	if len(seed) == 0 {
		return true
	}
	sort.SliceStable(seed, func(i, j int) bool { return seed[i].Time.Before(seed[j].Time) })

	live := s.points
	s.points = nil
	for _, p := range seed {
		if len(live) > 0 && !p.Time.Before(live[0].Time) {
			break
		}
		ps.merge(s, p)
	}
	for _, p := range live {
		ps.merge(s, p)
	}

	if !s.price.IsPositive() {
		s.price = s.points[len(s.points)-1].Price
	}
	return true
}

// Snapshot returns a copy of the symbol's current state.
func (ps *PriceStore) Snapshot(symbol domain.Symbol) (domain.PriceSnapshot, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s, ok := ps.data[symbol]
	if !ok {
		return domain.PriceSnapshot{}, false
	}
	return ps.snapshotLocked(symbol, s), true
}

// Snapshots returns a copy of every symbol's state in configuration order.
func (ps *PriceStore) Snapshots() []domain.PriceSnapshot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]domain.PriceSnapshot, 0, len(ps.data))
	for _, sym := range ps.symbols.List() {
		out = append(out, ps.snapshotLocked(sym, ps.data[sym]))
	}
	return out
}

func (ps *PriceStore) snapshotLocked(symbol domain.Symbol, s *series) domain.PriceSnapshot {
	pts := make([]domain.PricePoint, len(s.points))
	copy(pts, s.points)
	return domain.PriceSnapshot{
		Symbol:    symbol,
		Price:     s.price,
		Change24h: s.change24h,
		Series:    pts,
	}
}

// Price returns the current price, zero when unknown.
func (ps *PriceStore) Price(symbol domain.Symbol) decimal.Decimal {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if s, ok := ps.data[symbol]; ok {
		return s.price
	}
	return decimal.Zero
}

// Prices returns the current price of every symbol.
func (ps *PriceStore) Prices() map[domain.Symbol]decimal.Decimal {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make(map[domain.Symbol]decimal.Decimal, len(ps.data))
	for sym, s := range ps.data {
		out[sym] = s.price
	}
	return out
}

// RecentPrices returns up to n of the most recent history prices, oldest
// first.
func (ps *PriceStore) RecentPrices(symbol domain.Symbol, n int) []decimal.Decimal {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s, ok := ps.data[symbol]
	if !ok || n <= 0 {
		return nil
	}
	pts := s.points
	if len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	out := make([]decimal.Decimal, len(pts))
	for i, p := range pts {
		out[i] = p.Price
	}
	return out
}

// Average returns the arithmetic mean of the history prices, or 0 when the
// history is empty.
func Average(prices []decimal.Decimal) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p.InexactFloat64()
	}
	return sum / float64(len(prices))
}

// Volatility returns the population standard deviation of prices. With
// fewer than two points it returns 0.
func Volatility(prices []decimal.Decimal) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean := Average(prices)
	var variance float64
	for _, p := range prices {
		d := p.InexactFloat64() - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	return math.Sqrt(variance)
}
