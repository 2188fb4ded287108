// Package metrics provides Prometheus metrics for the livebid relay.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultSampleInterval = 10 * time.Second

// Manager owns every Prometheus collector of the relay.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	sampleInterval time.Duration
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Gift ingestion
	giftsTotal   *prometheus.CounterVec
	coinsAwarded prometheus.Counter

	// Leaderboard
	leaderboardUpdates    prometheus.Counter
	leaderboardRejections *prometheus.CounterVec
	donorCount            prometheus.Gauge

	// Auction timer
	timerTicks     prometheus.Counter
	auctionPhase   prometheus.Gauge
	tieExtensions  prometheus.Counter
	roundsFinished prometheus.Counter

	// Sessions and upstream
	activeSessions       prometheus.Gauge
	connectedSubscribers prometheus.Gauge
	upstreamConnects     *prometheus.CounterVec
	upstreamFailures     *prometheus.CounterVec
	upstreamEvents       *prometheus.CounterVec

	// Fanout
	fanoutMessages       *prometheus.CounterVec
	fanoutDeliveryErrors prometheus.Counter

	// Queue and worker
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Result sink
	sinkPublishes *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "livebid",
		subsystem:      "relay",
		latencyBuckets: prometheus.DefBuckets,
		enabled:        true,
		sampleInterval: defaultSampleInterval,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.giftsTotal = auto.NewCounterVec(m.counterOpts("gifts_total",
		"Gift events seen by the dedup gate, by outcome"), []string{"outcome"})
	m.coinsAwarded = auto.NewCounter(m.counterOpts("coins_awarded_total",
		"Coins credited to donors"))

	m.leaderboardUpdates = auto.NewCounter(m.counterOpts("leaderboard_updates_total",
		"Accepted leaderboard records"))
	m.leaderboardRejections = auto.NewCounterVec(m.counterOpts("leaderboard_rejections_total",
		"Rejected leaderboard records, by reason"), []string{"reason"})
	m.donorCount = auto.NewGauge(m.gaugeOpts("donors",
		"Donors in the current round"))

	m.timerTicks = auto.NewCounter(m.counterOpts("timer_ticks_total",
		"Auction timer ticks"))
	m.auctionPhase = auto.NewGauge(m.gaugeOpts("auction_phase",
		"Current auction phase (0 idle, 1 initial, 2 delay, 3 tie break, 4 finished)"))
	m.tieExtensions = auto.NewCounter(m.counterOpts("tie_extensions_total",
		"Tie-break extensions granted"))
	m.roundsFinished = auto.NewCounter(m.counterOpts("rounds_finished_total",
		"Auction rounds that reached FINISHED"))

	m.activeSessions = auto.NewGauge(m.gaugeOpts("active_sessions",
		"Stream sessions currently held by the registry"))
	m.connectedSubscribers = auto.NewGauge(m.gaugeOpts("connected_subscribers",
		"Subscriber transports currently connected"))
	m.upstreamConnects = auto.NewCounterVec(m.counterOpts("upstream_connects_total",
		"Upstream connect attempts, by result"), []string{"result"})
	m.upstreamFailures = auto.NewCounterVec(m.counterOpts("upstream_failures_total",
		"Classified upstream failures, by category"), []string{"category"})
	m.upstreamEvents = auto.NewCounterVec(m.counterOpts("upstream_events_total",
		"Upstream events relayed, by type"), []string{"type"})

	m.fanoutMessages = auto.NewCounterVec(m.counterOpts("fanout_messages_total",
		"Messages published, by scope"), []string{"scope"})
	m.fanoutDeliveryErrors = auto.NewCounter(m.counterOpts("fanout_delivery_errors_total",
		"Per-subscriber delivery failures"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Gift events waiting in the ingest queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Capacity of the ingest queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total",
		"Gift events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total",
		"Gift events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Gift events dropped because the queue was full or closed"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time from dequeue to leaderboard mutation"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Gift events the worker could not process"))

	m.sinkPublishes = auto.NewCounterVec(m.counterOpts("sink_publishes_total",
		"Round results handed to the result sink, by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
}

// SampleInterval is the period for CollectSystem.
func (m *Manager) SampleInterval() time.Duration { return m.sampleInterval }

func on() bool { return globalManager != nil && globalManager.enabled }

// Gift ingestion.

// RecordGift counts a gift event by gate outcome.
func RecordGift(outcome string) {
	if on() {
		globalManager.giftsTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordCoinsAwarded adds accepted coins.
func RecordCoinsAwarded(coins int64) {
	if on() && coins > 0 {
		globalManager.coinsAwarded.Add(float64(coins))
	}
}

// Leaderboard.

func RecordLeaderboardUpdate() {
	if on() {
		globalManager.leaderboardUpdates.Inc()
	}
}

func RecordLeaderboardRejection(reason string) {
	if on() {
		globalManager.leaderboardRejections.WithLabelValues(reason).Inc()
	}
}

func UpdateDonorCount(count int) {
	if on() {
		globalManager.donorCount.Set(float64(count))
	}
}

// Auction timer.

func RecordTimerTick() {
	if on() {
		globalManager.timerTicks.Inc()
	}
}

func UpdateAuctionPhase(code int) {
	if on() {
		globalManager.auctionPhase.Set(float64(code))
	}
}

func RecordTieExtension() {
	if on() {
		globalManager.tieExtensions.Inc()
	}
}

func RecordRoundFinished() {
	if on() {
		globalManager.roundsFinished.Inc()
	}
}

// Sessions.

func UpdateActiveSessions(count int) {
	if on() {
		globalManager.activeSessions.Set(float64(count))
	}
}

func UpdateConnectedSubscribers(count int) {
	if on() {
		globalManager.connectedSubscribers.Set(float64(count))
	}
}

// RecordUpstreamConnect counts a connect attempt; result is "ok", "error",
// "dropped" or "abandoned".
func RecordUpstreamConnect(result string) {
	if on() {
		globalManager.upstreamConnects.WithLabelValues(result).Inc()
	}
}

func RecordUpstreamFailure(category string) {
	if on() {
		globalManager.upstreamFailures.WithLabelValues(category).Inc()
	}
}

func RecordUpstreamEvent(eventType string) {
	if on() {
		globalManager.upstreamEvents.WithLabelValues(eventType).Inc()
	}
}

// Fanout.

// RecordFanoutMessage counts a publish; scope is "broadcaster", "global" or "direct".
func RecordFanoutMessage(scope string) {
	if on() {
		globalManager.fanoutMessages.WithLabelValues(scope).Inc()
	}
}

func RecordFanoutDeliveryError() {
	if on() {
		globalManager.fanoutDeliveryErrors.Inc()
	}
}

// Queue and worker.

func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// Result sink.

func RecordSinkPublish(result string) {
	if on() {
		globalManager.sinkPublishes.WithLabelValues(result).Inc()
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// CollectSystem samples runtime memory and goroutine counts.
func CollectSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapInuse)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// Global returns the process-wide manager.
func Global() *Manager { return globalManager }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
