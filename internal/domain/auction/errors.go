package auction

import "errors"

// Invalid transitions. None of these are fatal; the timer state is unchanged.
var (
	ErrAlreadyActive = errors.New("auction already active")
	ErrNotActive     = errors.New("auction not active")
	ErrAlreadyPaused = errors.New("auction already paused")
	ErrNotPaused     = errors.New("auction not paused")
	ErrFinished      = errors.New("auction finished")
)
