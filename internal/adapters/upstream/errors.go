package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects connects.
	ErrCircuitOpen = errors.New("sign service unavailable: upstream circuit open")
	// ErrInvalidURL is returned for an unusable gateway URL.
	ErrInvalidURL = errors.New("invalid upstream url")
)

// HandshakeError is a rejected websocket upgrade. Its text carries the
// status and the gateway's response body so it can be classified.
type HandshakeError struct {
	Status int
	Body   string
}

func (e *HandshakeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream handshake failed: status %d", e.Status)
	}
	return fmt.Sprintf("upstream handshake failed: status %d: %s", e.Status, e.Body)
}
