// Package queue buffers raw gift envelopes between the upstream readers and
// the ingest worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/metrics"
)

const defaultCapacity = 10000

// Event is the payload flowing through the queue.
type Event = model.GiftEnvelope

// GiftQueue is a bounded FIFO. Push never blocks the upstream read loop;
// Next is meant for a single consumer so arrival order is kept.
type GiftQueue struct {
	capacity int
	events   chan Event

	mu     sync.RWMutex
	closed bool
}

// New creates a queue with room for WithCapacity gifts.
func New(opts ...Option) *GiftQueue {
	q := &GiftQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Push appends e or reports why it could not.
func (q *GiftQueue) Push(ctx context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var reason string
	err := ctx.Err()
	switch {
	case q.closed:
		err, reason = ErrClosed, "closed"
	case err != nil:
		reason = "context_cancelled"
	default:
		select {
		case q.events <- e:
			metrics.RecordQueueEnqueue()
			metrics.UpdateQueueSize(len(q.events))
			return nil
		default:
			err, reason = ErrFull, "queue_full"
		}
	}
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
	return err
}

// Next blocks for the oldest gift. ok is false once ctx is done or the
// queue is closed and empty.
func (q *GiftQueue) Next(ctx context.Context) (e Event, ok bool) {
	select {
	case e, ok = <-q.events:
		if ok {
			metrics.RecordQueueDequeue()
			metrics.UpdateQueueSize(len(q.events))
		}
		return e, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

// Len is the number of waiting gifts.
func (q *GiftQueue) Len() int { return len(q.events) }

// Cap is the configured capacity.
func (q *GiftQueue) Cap() int { return q.capacity }

// Close stops Push. Gifts already queued are still handed out by Next.
func (q *GiftQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	return nil
}
