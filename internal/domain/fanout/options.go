package fanout

import "github.com/okian/livebid/pkg/logger"

// Option configures a Fanout.
type Option func(*Fanout)

// WithLogger sets the fanout logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fanout) {
		if l != nil {
			f.log = l
		}
	}
}
