package gift

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/livebid/internal/domain/dedupe"
	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Gate. Window, size and clock are passed through to the
// gate's private dedup store.
type Option func(*Gate, *[]dedupe.Option)

// WithWindow sets the dedup window.
func WithWindow(d time.Duration) Option {
	return func(_ *Gate, do *[]dedupe.Option) {
		*do = append(*do, dedupe.WithWindow(d))
	}
}

// WithMaxKeys bounds the number of tracked dedup keys.
func WithMaxKeys(n int) Option {
	return func(_ *Gate, do *[]dedupe.Option) {
		*do = append(*do, dedupe.WithMaxSize(n))
	}
}

// WithClock sets the clock used for dedup expiry.
func WithClock(c clockwork.Clock) Option {
	return func(_ *Gate, do *[]dedupe.Option) {
		*do = append(*do, dedupe.WithClock(c))
	}
}

// WithHighValueThreshold sets the diamond value for instant single-shot gifts.
func WithHighValueThreshold(diamonds int64) Option {
	return func(g *Gate, _ *[]dedupe.Option) {
		if diamonds > 0 {
			g.threshold = diamonds
		}
	}
}

// WithLogger sets the gate logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate, _ *[]dedupe.Option) {
		if l != nil {
			g.log = l
		}
	}
}
