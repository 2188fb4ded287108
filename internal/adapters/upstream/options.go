package upstream

import (
	"time"

	"github.com/okian/livebid/pkg/logger"
)

// Option configures a Connector.
type Option func(*Connector)

// WithHandshakeTimeout bounds the websocket upgrade.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WithBreaker sets how many consecutive gateway failures open the circuit
// and how long it stays open.
func WithBreaker(tripAfter uint32, openFor time.Duration) Option {
	return func(c *Connector) {
		if tripAfter > 0 {
			c.tripAfter = tripAfter
		}
		if openFor > 0 {
			c.openFor = openFor
		}
	}
}

// WithLogger sets the connector logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Connector) {
		if l != nil {
			c.log = l
		}
	}
}
