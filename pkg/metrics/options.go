package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the "livebid" metric prefix.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem overrides the "relay" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the buckets of worker and HTTP latency histograms.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.latencyBuckets = buckets
		}
	}
}

// WithSampleInterval sets how often memory and goroutine gauges are sampled.
func WithSampleInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sampleInterval = d
		}
	}
}

// WithConstLabels attaches labels such as an instance name to every series.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.constLabels = labels
		}
	}
}

// WithRegistry registers collectors on reg instead of the default registerer.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}
