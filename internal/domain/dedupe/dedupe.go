// Package dedupe tracks recently seen keys within a trailing time window.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults for the in-memory window.
const (
	DefaultWindow  = 5 * time.Second
	DefaultMaxSize = 100000
)

// Deduper records seen keys so that each key is accepted at most once per window.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen within the window and
	// records it with a fresh expiry if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	Size() int64
}

type entry struct {
	key     string
	expires time.Time
	timer   clockwork.Timer
	elem    *list.Element
}

// inMemoryDeduper keeps keys in a map with one expiry timer each.
// Insertion order is tracked so the oldest key can be dropped when maxSize is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	window  time.Duration
	maxSize int // 0 or negative = unbounded
	clock   clockwork.Clock
	size    atomic.Int64
}

// NewInMemoryDeduper creates a windowed deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		window:  DefaultWindow,
		maxSize: DefaultMaxSize,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*entry)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if e, ok := d.seen[key]; ok {
		if now.Before(e.expires) {
			return true
		}
		// Expired but the eviction callback has not run yet.
		d.removeLocked(e)
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if front := d.order.Front(); front != nil {
			d.removeLocked(front.Value.(*entry))
		}
	}

	e := &entry{key: key, expires: now.Add(d.window)}
	e.elem = d.order.PushBack(e)
	e.timer = d.clock.AfterFunc(d.window, func() { d.expire(e) })
	d.seen[key] = e
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// expire runs on the clock's timer goroutine. It only removes the entry it
// was scheduled for; a key re-recorded since then has a different entry.
func (d *inMemoryDeduper) expire(e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.seen[e.key]; ok && cur == e {
		d.removeLocked(e)
	}
}

// removeLocked must be called with d.mu held.
func (d *inMemoryDeduper) removeLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	d.order.Remove(e.elem)
	delete(d.seen, e.key)
	d.size.Add(-1)
}
