package dedupe

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithWindow sets how long a recorded key stays seen. Non-positive values are ignored.
func WithWindow(window time.Duration) Option {
	return func(d *inMemoryDeduper) {
		if window > 0 {
			d.window = window
		}
	}
}

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0 the oldest key is dropped once the limit is reached.
// If maxSize <= 0 the store is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// WithClock sets the clock used for expiry. Tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(d *inMemoryDeduper) {
		if c != nil {
			d.clock = c
		}
	}
}
