// Package worker drains the gift queue through the dedup gate into the
// leaderboard. A single worker keeps awards in upstream arrival order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/livebid/internal/adapters/mq/queue"
	"github.com/okian/livebid/internal/domain/gift"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// Gate turns raw payloads into awards.
type Gate interface {
	Ingest(ctx context.Context, payload []byte) (*model.CoinAward, gift.Outcome)
}

// Recorder credits an accepted award.
type Recorder interface {
	RecordAward(ctx context.Context, a *model.CoinAward) bool
}

// Queue hands out gifts in arrival order.
type Queue interface {
	Next(ctx context.Context) (queue.Event, bool)
}

// Worker processes events until its queue closes or it is shut down.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// IngestWorker implements Worker for gift envelopes.
type IngestWorker struct {
	queue    Queue
	gate     Gate
	recorder Recorder
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	credited  atomic.Int64

	logger logger.Logger
}

// NewIngestWorker creates a worker over q.
func NewIngestWorker(q Queue, gate Gate, recorder Recorder, opts ...Option) *IngestWorker {
	w := &IngestWorker{
		queue:    q,
		gate:     gate,
		recorder: recorder,
		name:     "ingest",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes the queue until it is closed and drained, ctx is done or
// Shutdown is called.
func (w *IngestWorker) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		e, ok := w.queue.Next(ctx)
		if !ok {
			return
		}
		w.process(ctx, e)
	}
}

// Shutdown stops the loop and waits for it to exit.
func (w *IngestWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *IngestWorker) Done() <-chan struct{} { return w.done }

// Processed returns how many envelopes were taken off the queue.
func (w *IngestWorker) Processed() int64 { return w.processed.Load() }

// Credited returns how many awards reached the leaderboard.
func (w *IngestWorker) Credited() int64 { return w.credited.Load() }

func (w *IngestWorker) process(ctx context.Context, e queue.Event) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	w.processed.Add(1)

	award, outcome := w.gate.Ingest(ctx, e.Payload)
	if award == nil {
		if outcome == gift.Invalid {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "invalid_gift")
		}
		return
	}
	if !w.recorder.RecordAward(ctx, award) {
		w.logger.Debug(ctx, "award not credited",
			logger.String("broadcaster", e.BroadcasterID),
			logger.String("donor", award.UniqueID),
			logger.Int64("coins", award.Coins))
		return
	}
	w.credited.Add(1)
}
