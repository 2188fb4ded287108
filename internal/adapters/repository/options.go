package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithPriority overrides the random node priority source. Tests use it for
// reproducible tree shapes.
func WithPriority(fn func() uint64) Option {
	return func(s *TreapStore) {
		if fn != nil {
			s.prio = fn
		}
	}
}
