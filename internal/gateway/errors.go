package gateway

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned for ids that cannot name a session.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrTooManySessions is returned when the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions")

	// ErrBusy is returned when a message arrives while a turn is running.
	ErrBusy = errors.New("session is busy")
)

var errUnauthorized = errors.New("unauthorized")
