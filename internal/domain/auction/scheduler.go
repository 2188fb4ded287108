// Package auction drives the countdown and tie-break phases of an auction round.
package auction

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a cancellable repeating callback.
type Task interface {
	// Stop cancels future runs. It does not wait for a run in progress.
	Stop()
}

// Scheduler starts repeating tasks.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// ClockScheduler runs tasks on tickers from a clockwork clock.
type ClockScheduler struct {
	clock clockwork.Clock
}

// NewClockScheduler returns a scheduler backed by c, or the real clock if c is nil.
func NewClockScheduler(c clockwork.Clock) *ClockScheduler {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &ClockScheduler{clock: c}
}

type tickerTask struct {
	once sync.Once
	done chan struct{}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Every calls fn once per interval on its own goroutine until the task is stopped.
func (s *ClockScheduler) Every(interval time.Duration, fn func()) Task {
	task := &tickerTask{done: make(chan struct{})}
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-task.done:
				return
			case <-ticker.Chan():
				select {
				case <-task.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return task
}
