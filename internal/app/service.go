// Package service assembles the relay: sessions, ingestion, leaderboard,
// auction timer and the subscriber transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/livebid/internal/adapters/http/api"
	eventqueue "github.com/okian/livebid/internal/adapters/mq/queue"
	workerpool "github.com/okian/livebid/internal/adapters/mq/worker"
	"github.com/okian/livebid/internal/adapters/sink"
	"github.com/okian/livebid/internal/adapters/upstream"
	"github.com/okian/livebid/internal/adapters/ws"
	"github.com/okian/livebid/internal/config"
	"github.com/okian/livebid/internal/domain/auction"
	"github.com/okian/livebid/internal/domain/fanout"
	"github.com/okian/livebid/internal/domain/gift"
	"github.com/okian/livebid/internal/domain/leaderboard"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/internal/domain/session"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// ResultSink persists finished rounds and releases its resources on Close.
type ResultSink interface {
	auction.ResultSink
	Close() error
}

// Service owns every component and their lifecycle.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	clock     clockwork.Clock
	connector session.Connector
	sink      ResultSink

	fan      *fanout.Fanout
	board    *leaderboard.Leaderboard
	gate     *gift.Gate
	queue    *eventqueue.GiftQueue
	worker   *workerpool.IngestWorker
	registry *session.Registry
	breaker  *upstream.Connector
	timer    *auction.Timer
	ws       *ws.Server
	handler  http.Handler

	cancel  context.CancelFunc
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets the root logger; components get named children.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used by the dedup window, the auction scheduler
// and the liveness sweeper.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithConnector replaces the upstream gateway connector.
func WithConnector(c session.Connector) Option {
	return func(s *Service) {
		if c != nil {
			s.connector = c
		}
	}
}

// WithResultSink replaces the sink chosen from configuration.
func WithResultSink(r ResultSink) Option {
	return func(s *Service) {
		if r != nil {
			s.sink = r
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		clock:  clockwork.NewRealClock(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts the components. Calling it twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting relay service...")

	connector := s.connector
	if connector == nil {
		c, err := upstream.New(cfg.UpstreamURL,
			upstream.WithHandshakeTimeout(cfg.UpstreamConnectTimeout()),
			upstream.WithBreaker(uint32(cfg.UpstreamBreakerFailures), cfg.UpstreamBreakerOpen()),
			upstream.WithLogger(s.logger.Named("upstream")),
		)
		if err != nil {
			return fmt.Errorf("upstream connector: %w", err)
		}
		s.breaker = c
		connector = c
	}

	resultSink := s.sink
	if resultSink == nil {
		if cfg.NATSURL != "" {
			ns, err := sink.NewNATS(cfg.NATSURL, cfg.NATSSubject, s.logger.Named("sink"))
			if err != nil {
				return err
			}
			resultSink = ns
		} else {
			resultSink = sink.NewLog(s.logger.Named("sink"))
		}
	}
	s.sink = resultSink

	s.fan = fanout.New(fanout.WithLogger(s.logger.Named("fanout")))
	s.board = leaderboard.New(
		leaderboard.WithPublisher(s.fan),
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
	)
	s.gate = gift.NewGate(
		gift.WithWindow(cfg.DedupeWindow()),
		gift.WithMaxKeys(cfg.DedupeSize),
		gift.WithHighValueThreshold(cfg.HighValueThreshold),
		gift.WithClock(s.clock),
		gift.WithLogger(s.logger.Named("gift")),
	)
	s.queue = eventqueue.New(eventqueue.WithCapacity(cfg.QueueSize))
	s.worker = workerpool.NewIngestWorker(s.queue, s.gate, s.board,
		workerpool.WithLogger(s.logger.Named("worker")),
	)

	s.registry = session.NewRegistry(connector, s.fan,
		session.WithCredentials(session.StaticCredentials{
			SessionID: cfg.UpstreamSessionID,
			TargetIDC: cfg.UpstreamTargetIDC,
		}),
		session.WithClassifier(session.NewClassifier(rulesFromConfig(cfg.ErrorRules)...)),
		session.WithConnectTimeout(cfg.UpstreamConnectTimeout()),
		session.WithOnEvent(s.onUpstreamEvent),
		session.WithLogger(s.logger.Named("sessions")),
	)

	s.timer = auction.NewTimer(s.board,
		auction.WithDurations(cfg.InitialDurationSec, cfg.DelayDurationSec, cfg.TieExtensionSec),
		auction.WithMaxTieExtensions(cfg.MaxTieExtensions),
		auction.WithClock(s.clock),
		auction.WithPublisher(s.fan),
		auction.WithResultSink(resultSink),
		auction.WithLogger(s.logger.Named("auction")),
	)

	s.ws = ws.NewServer(s.registry, s.fan,
		ws.WithClock(s.clock),
		ws.WithLivenessInterval(cfg.LivenessInterval()),
		ws.WithSendBuffer(cfg.SendBuffer),
		ws.WithInboundRate(float64(cfg.InboundRatePerSec), cfg.InboundBurst),
		ws.WithPublisherToken(cfg.PublisherToken),
		ws.WithLogger(s.logger.Named("ws")),
	)

	apiServer := api.NewServer(s.board, s.timer, s, s.ws,
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithLogger(s.logger.Named("api")),
	)
	s.handler = apiServer.Routes()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.worker.Run(runCtx)
	go s.ws.Run(runCtx)

	metrics.UpdateQueueCapacity(cfg.QueueSize)
	s.started = true
	s.logger.Info(ctx, "relay service started",
		logger.Int("queueSize", cfg.QueueSize),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.String("upstream", cfg.UpstreamURL),
	)
	return nil
}

// onUpstreamEvent feeds gift notifications to the ordered ingest queue.
func (s *Service) onUpstreamEvent(ctx context.Context, ev session.Event) {
	if ev.Type != types.TypeGift {
		return
	}
	env := model.GiftEnvelope{
		BroadcasterID: ev.BroadcasterID,
		Payload:       ev.Data,
		ReceivedAt:    s.clock.Now(),
	}
	if err := s.queue.Push(ctx, env); err != nil {
		s.logger.Warn(ctx, "gift dropped",
			logger.String("broadcaster", ev.BroadcasterID),
			logger.Int("queueLength", s.queue.Len()),
			logger.Int("queueCapacity", s.queue.Cap()),
			logger.Error(err))
	}
}

func rulesFromConfig(in []config.ErrorRule) []session.Rule {
	out := make([]session.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, session.Rule{
			Name:      r.Name,
			Match:     session.ContainsAny(r.Contains...),
			Message:   r.Message,
			NeedsAuth: r.NeedsAuth,
		})
	}
	return out
}

// Handler returns the HTTP routes. It is nil before Start.
func (s *Service) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Leaderboard returns the round leaderboard.
func (s *Service) Leaderboard() *leaderboard.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board
}

// Timer returns the auction timer.
func (s *Service) Timer() *auction.Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer
}

// Stop closes subscribers and sessions, drains queued gifts into the
// leaderboard and releases the sink. ctx bounds the drain.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping relay service...")

	s.ws.Close()
	s.registry.Close(ctx)
	s.timer.Reset(ctx)

	_ = s.queue.Close()
	var errs []error
	select {
	case <-s.worker.Done():
	case <-ctx.Done():
		errs = append(errs, s.worker.Shutdown(ctx))
	}
	s.cancel()

	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "relay service stopped",
		logger.Int64("processed", s.worker.Processed()),
		logger.Int64("credited", s.worker.Credited()))
	return errors.Join(errs...)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":   s.started,
		"queueSize": s.cfg.QueueSize,
	}
	if s.board == nil {
		return stats
	}

	queueLen := s.queue.Len()
	sessions := s.registry.Sessions()
	stats["queueLength"] = queueLen
	stats["donors"] = s.board.Count(ctx)
	stats["frozen"] = s.board.Frozen()
	stats["subscribers"] = s.ws.Count()
	stats["sessions"] = sessions
	stats["giftsProcessed"] = s.worker.Processed()
	stats["giftsCredited"] = s.worker.Credited()
	stats["auction"] = s.timer.State()
	if s.breaker != nil {
		stats["upstreamBreaker"] = s.breaker.State()
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateActiveSessions(len(sessions))
	return stats
}

// statsInterval is how often RunStatsUpdater refreshes gauges.
const statsInterval = 5 * time.Second

// RunStatsUpdater refreshes gauges from GetStats until ctx is done.
func (s *Service) RunStatsUpdater(ctx context.Context) {
	ticker := s.clock.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.GetStats()
		}
	}
}
