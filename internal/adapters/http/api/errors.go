package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
)

// kindError tags an error with the operation that produced it.
type kindError struct {
	op  string
	err error
}

func (e *kindError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *kindError) Unwrap() error { return e.err }

// NewKind wraps err with op.
func NewKind(op string, err error) error {
	return &kindError{op: op, err: err}
}
