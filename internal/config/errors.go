package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every FieldError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, env and decode failures in Load.
	ErrLoadConfig = errors.New("load config failed")
)

// FieldError names the configuration key that failed validation.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Key, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }
