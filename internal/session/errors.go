package session

import "errors"

// Sentinel errors for turn termination.
var (
	ErrClosed              = errors.New("session: closed")
	ErrEmptyMessage        = errors.New("session: empty message")
	ErrMaxStepsReached     = errors.New("session: max steps reached")
	ErrLoopDetected        = errors.New("session: loop detected")
	ErrTokenBudgetExceeded = errors.New("session: token budget exceeded")
)
