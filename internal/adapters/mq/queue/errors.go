package queue

import "errors"

var (
	// ErrFull means the buffer is at capacity; the gift is dropped.
	ErrFull = errors.New("gift queue full")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("gift queue closed")
)
