package auction

import (
	"github.com/jonboulle/clockwork"
	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Timer.
type Option func(*Timer)

// WithDurations sets the INITIAL, DELAY and TIE_BREAK lengths in seconds.
// Negative values are ignored; a zero delay skips DELAY.
func WithDurations(initial, delay, tie int) Option {
	return func(t *Timer) {
		if initial >= 0 {
			t.initial = initial
		}
		if delay >= 0 {
			t.delay = delay
		}
		if tie >= 0 {
			t.tie = tie
		}
	}
}

// WithMaxTieExtensions bounds the number of TIE_BREAK extensions.
func WithMaxTieExtensions(n int) Option {
	return func(t *Timer) {
		if n >= 0 {
			t.maxTies = n
		}
	}
}

// WithScheduler injects the tick scheduler. Tests use a manual one.
func WithScheduler(s Scheduler) Option {
	return func(t *Timer) {
		if s != nil {
			t.sched = s
		}
	}
}

// WithClock sets the clock for the default scheduler and result timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(t *Timer) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithPublisher sets where timer messages are broadcast.
func WithPublisher(p Publisher) Option {
	return func(t *Timer) {
		t.pub = p
	}
}

// WithResultSink sets where finished rounds are persisted.
func WithResultSink(s ResultSink) Option {
	return func(t *Timer) {
		t.sink = s
	}
}

// WithLogger sets the timer logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Timer) {
		if l != nil {
			t.log = l
		}
	}
}
