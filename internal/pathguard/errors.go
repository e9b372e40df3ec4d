package pathguard

import "errors"

var (
	// ErrAccessDenied is returned for paths that look like secrets or that
	// resolve outside the guarded root.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned when the resolved path does not exist.
	ErrNotFound = errors.New("path does not exist")

	// ErrNotAFile is returned when a regular file was expected.
	ErrNotAFile = errors.New("path is not a file")

	// ErrTooLarge is returned when a file exceeds the configured size cap.
	ErrTooLarge = errors.New("file too large")
)
