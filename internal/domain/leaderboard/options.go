package leaderboard

import (
	"github.com/okian/livebid/internal/adapters/repository"
	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Leaderboard.
type Option func(*Leaderboard)

// WithStore sets the donor store. Defaults to an in-memory treap.
func WithStore(s repository.Store) Option {
	return func(l *Leaderboard) {
		if s != nil {
			l.store = s
		}
	}
}

// WithPublisher sets where ranked snapshots are broadcast.
func WithPublisher(p Publisher) Option {
	return func(l *Leaderboard) {
		l.pub = p
	}
}

// WithLogger sets the leaderboard logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Leaderboard) {
		if lg != nil {
			l.log = lg
		}
	}
}
