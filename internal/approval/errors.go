package approval

import "errors"

var (
	// ErrClosed is returned when the gate was torn down before a decision.
	ErrClosed = errors.New("approval gate closed")

	// ErrTimeout is returned when no decision arrived within the timeout.
	ErrTimeout = errors.New("approval timed out")

	// ErrDuplicate is returned when a request id is already pending.
	ErrDuplicate = errors.New("approval already pending")
)
