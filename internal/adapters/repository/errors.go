package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("donor not found")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
	ErrEmptyKey      = errors.New("empty donor key")
	ErrInvalidAmount = errors.New("coin amount must be positive")
)
