// Package config defines the relay configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrorRule is an extra upstream failure classification rule. Rules from
// configuration are evaluated before the built-in ones.
type ErrorRule struct {
	Name      string   `koanf:"name"`
	Contains  []string `koanf:"contains"`
	Message   string   `koanf:"message"`
	NeedsAuth bool     `koanf:"needs_auth"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the gift ingest queue.
	QueueSize int `koanf:"queue_size"`

	DedupeWindowMS int `koanf:"dedupe_window_ms"`
	// DedupeSize caps tracked dedup keys; 0 means unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// HighValueThreshold is the diamond value at or above which a gift is
	// credited on its first notification.
	HighValueThreshold int64 `koanf:"high_value_threshold"`

	LivenessIntervalMS int `koanf:"liveness_interval_ms"`
	SendBuffer         int `koanf:"send_buffer"`
	InboundRatePerSec  int `koanf:"inbound_rate_per_sec"`
	InboundBurst       int `koanf:"inbound_burst"`

	// PublisherToken, when set, is required to push leaderboard-update.
	PublisherToken string   `koanf:"publisher_token"`
	AllowedOrigins []string `koanf:"allowed_origins"`

	InitialDurationSec int `koanf:"initial_duration_sec"`
	// DelayDurationSec of 0 skips the DELAY phase.
	DelayDurationSec int `koanf:"delay_duration_sec"`
	TieExtensionSec  int `koanf:"tie_extension_sec"`
	MaxTieExtensions int `koanf:"max_tie_extensions"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	UpstreamURL              string `koanf:"upstream_url"`
	UpstreamSessionID        string `koanf:"upstream_session_id"`
	UpstreamTargetIDC        string `koanf:"upstream_target_idc"`
	UpstreamConnectTimeoutMS int    `koanf:"upstream_connect_timeout_ms"`
	UpstreamBreakerFailures  int    `koanf:"upstream_breaker_failures"`
	UpstreamBreakerOpenMS    int    `koanf:"upstream_breaker_open_ms"`

	// NATSURL selects the NATS result sink; empty logs results instead.
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`

	ErrorRules []ErrorRule `koanf:"error_rules"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":9080",
		QueueSize:                10_000,
		DedupeWindowMS:           5_000,
		DedupeSize:               100_000,
		HighValueThreshold:       99,
		LivenessIntervalMS:       30_000,
		SendBuffer:               256,
		InboundRatePerSec:        10,
		InboundBurst:             20,
		AllowedOrigins:           []string{"*"},
		InitialDurationSec:       60,
		DelayDurationSec:         10,
		TieExtensionSec:          30,
		MaxTieExtensions:         5,
		MaxLeaderboardLimit:      100,
		UpstreamURL:              "ws://localhost:8089/live",
		UpstreamConnectTimeoutMS: 15_000,
		UpstreamBreakerFailures:  5,
		UpstreamBreakerOpenMS:    30_000,
		NATSSubject:              "livebid.auction.results",
	}
}

// Validate reports every violated key at once. Each violation is a
// *FieldError, so errors.Is(err, ErrInvalidConfig) holds for the result.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, reason string) { errs = append(errs, &FieldError{Key: key, Reason: reason}) }

	if c.Addr == "" {
		bad("addr", "must not be empty")
	}
	if c.UpstreamURL == "" {
		bad("upstream_url", "must not be empty")
	}
	for _, f := range []struct {
		key string
		v   int
	}{
		{"queue_size", c.QueueSize},
		{"initial_duration_sec", c.InitialDurationSec},
		{"tie_extension_sec", c.TieExtensionSec},
	} {
		if f.v < 1 {
			bad(f.key, fmt.Sprintf("must be positive, got %d", f.v))
		}
	}
	for _, f := range []struct {
		key string
		v   int
	}{
		{"dedupe_window_ms", c.DedupeWindowMS},
		{"dedupe_size", c.DedupeSize},
		{"liveness_interval_ms", c.LivenessIntervalMS},
		{"send_buffer", c.SendBuffer},
		{"inbound_rate_per_sec", c.InboundRatePerSec},
		{"inbound_burst", c.InboundBurst},
		{"delay_duration_sec", c.DelayDurationSec},
		{"max_tie_extensions", c.MaxTieExtensions},
		{"max_leaderboard_limit", c.MaxLeaderboardLimit},
		{"upstream_connect_timeout_ms", c.UpstreamConnectTimeoutMS},
		{"upstream_breaker_failures", c.UpstreamBreakerFailures},
		{"upstream_breaker_open_ms", c.UpstreamBreakerOpenMS},
	} {
		if f.v < 0 {
			bad(f.key, fmt.Sprintf("must not be negative, got %d", f.v))
		}
	}
	if c.HighValueThreshold < 0 {
		bad("high_value_threshold", "must not be negative")
	}
	for i, r := range c.ErrorRules {
		if r.Name == "" || len(r.Contains) == 0 {
			bad(fmt.Sprintf("error_rules[%d]", i), "needs a name and at least one substring")
		}
	}
	return errors.Join(errs...)
}

// DedupeWindow returns the dedup window.
func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindowMS) * time.Millisecond
}

// LivenessInterval returns the subscriber probe interval.
func (c *Config) LivenessInterval() time.Duration {
	return time.Duration(c.LivenessIntervalMS) * time.Millisecond
}

// UpstreamConnectTimeout returns the connect attempt bound.
func (c *Config) UpstreamConnectTimeout() time.Duration {
	return time.Duration(c.UpstreamConnectTimeoutMS) * time.Millisecond
}

// UpstreamBreakerOpen returns how long the upstream breaker stays open.
func (c *Config) UpstreamBreakerOpen() time.Duration {
	return time.Duration(c.UpstreamBreakerOpenMS) * time.Millisecond
}
