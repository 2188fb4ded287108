package api

import "github.com/okian/livebid/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps GET /leaderboard?limit.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.leaderboard.maxLimit = n
		}
	}
}

// WithAllowedOrigins sets the CORS origins for display surfaces.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the API logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
			s.auction.log = l
		}
	}
}
