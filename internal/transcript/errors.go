package transcript

import "errors"

var (
	// ErrUnknownMessage is returned for an event naming a message that was
	// never started.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrDuplicateMessage is returned when a message id is started twice.
	ErrDuplicateMessage = errors.New("message already started")

	// ErrMessageEnded is returned for a delta on a finished message.
	ErrMessageEnded = errors.New("message already ended")

	// ErrUnknownCall is returned for a state change naming an unknown call.
	ErrUnknownCall = errors.New("unknown tool call")

	// ErrInvalidEvent is returned for malformed events.
	ErrInvalidEvent = errors.New("invalid event")
)
