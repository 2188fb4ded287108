package ws

import (
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock driving the liveness sweep.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLivenessInterval sets how often subscribers are probed.
func WithLivenessInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSendBuffer sets the per-subscriber outbound frame buffer.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithInboundRate limits inbound messages per subscriber. perSec <= 0
// disables the limit.
func WithInboundRate(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec <= 0 {
			s.rate = rate.Inf
			return
		}
		s.rate = rate.Limit(perSec)
		if burst > 0 {
			s.burst = burst
		}
	}
}

// WithPublisherToken restricts inbound leaderboard-update to connections
// opened with ?token=<token>. Empty allows every connection.
func WithPublisherToken(token string) Option {
	return func(s *Server) {
		s.publisherToken = token
	}
}

// WithLogger sets the transport logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
