package tool

import "errors"

var (
	// ErrUnknownTool is returned when the model names a tool outside the
	// closed set. It is a protocol error, never a fallthrough.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidInput is returned when tool arguments cannot be decoded or
	// miss a required field.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrBlocked is returned for calls that must never run, such as
	// dangerous shell commands.
	ErrBlocked = errors.New("blocked for safety")

	// ErrIllegalTransition is returned when a call's state change is not
	// allowed by the lifecycle, including any move out of a terminal state.
	ErrIllegalTransition = errors.New("illegal tool call state transition")

	// ErrNoApprover is returned when a call needs approval but no approver
	// is configured.
	ErrNoApprover = errors.New("approval required but no approver configured")

	// ErrNoScopes is returned when a tool declares no scopes.
	ErrNoScopes = errors.New("tool must declare at least one scope")

	// ErrDuplicateTool is returned when registering a tool with a name that
	// already exists in the registry.
	ErrDuplicateTool = errors.New("tool already registered")
)
