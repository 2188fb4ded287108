// Package fakelive is a local stand-in for the upstream live gateway. It
// speaks the gateway frame format and emits realistic gift traffic.
package fakelive

import "time"

// Config holds the simulator settings.
type Config struct {
	Addr     string        // listen address
	Interval time.Duration // delay between emitted gift scenarios
	Donors   int           // size of the simulated donor pool

	// HighValueEvery makes every n-th scenario an instant high-value gift.
	HighValueEvery int
	// DuplicateEvery re-sends the terminal frame of every n-th streak.
	DuplicateEvery int
	// StreamEndAfter sends streamEnd after that many scenarios; 0 never ends.
	StreamEndAfter int

	// Broadcaster ids for which the handshake fails.
	OfflineIDs      []string // 404 user_not_found
	VerificationIDs []string // 403 captcha verification
}

// DefaultConfig returns the settings used by cmd/fake-live.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8089",
		Interval:        500 * time.Millisecond,
		Donors:          12,
		HighValueEvery:  7,
		DuplicateEvery:  4,
		OfflineIDs:      []string{"ghost"},
		VerificationIDs: []string{"captcha"},
	}
}

// Stats counts what the simulator sent.
type Stats struct {
	Connections int64
	Rejected    int64
	Scenarios   int64
	Frames      int64
	Duplicates  int64
}
