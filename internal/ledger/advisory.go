package ledger

import (
	"sync"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// AdvisoryLogCap is the number of rationale lines kept by an AdvisoryLog.
const AdvisoryLogCap = 50

// AdvisoryLog is a bounded, newest-first log of automation rationale. Unlike
// the OrderBook it carries no financial meaning and drops old lines.
type AdvisoryLog struct {
	entries []domain.AdvisoryEntry // oldest first
	limit   int
	now     func() time.Time
	mu      sync.RWMutex
}

// NewAdvisoryLog creates a log keeping the most recent AdvisoryLogCap lines.
func NewAdvisoryLog() *AdvisoryLog {
	return &AdvisoryLog{limit: AdvisoryLogCap, now: time.Now}
}

// Add records a line and returns the stored entry.
func (l *AdvisoryLog) Add(msg string, sentiment domain.Sentiment) domain.AdvisoryEntry {
	e := domain.AdvisoryEntry{Time: l.now().UTC(), Message: msg, Sentiment: sentiment}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.limit {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-l.limit:]...)
	}
	return e
}

// List returns the entries newest first.
func (l *AdvisoryLog) List() []domain.AdvisoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.AdvisoryEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}
