package session

import (
	"context"
	"time"

	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithCredentials sets the process-level credentials provider.
func WithCredentials(p CredentialsProvider) Option {
	return func(r *Registry) {
		if p != nil {
			r.creds = p
		}
	}
}

// WithClassifier replaces the failure classifier.
func WithClassifier(c *Classifier) Option {
	return func(r *Registry) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithOnEvent registers a hook called after every relayed upstream event,
// in upstream order.
func WithOnEvent(fn func(ctx context.Context, ev Event)) Option {
	return func(r *Registry) {
		r.onEvent = fn
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}
