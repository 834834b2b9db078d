package executor

import (
	"sync"
	"time"
)

// Dedup remembers the client order ids of filled intents for a TTL so a
// retried manual submission (double click, client retry) is not filled twice. It is safe for
// concurrent use.
type Dedup struct {
	seen map[string]time.Time // client order id -> recorded at
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats an id as a duplicate for ttl after it
// was recorded.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether id was recorded within the TTL. It does not record.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	first, ok := d.seen[id]
	return ok && d.now().Sub(first) < d.ttl
}

// Record remembers id from now on. Only filled intents are recorded, so a
// submission that failed can be retried with the same id.
func (d *Dedup) Record(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = d.now()
}

// Cleanup drops expired ids.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, first := range d.seen {
		if now.Sub(first) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of remembered ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
