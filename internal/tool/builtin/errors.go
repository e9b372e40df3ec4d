package builtin

import "errors"

var (
	// ErrTextNotFound is returned when the text to replace is absent.
	ErrTextNotFound = errors.New("text not found in file")

	// ErrEmptyPattern is returned when an edit has nothing to search for.
	ErrEmptyPattern = errors.New("oldString cannot be empty")

	// ErrStaleFile is returned when a file changed between the approval
	// preview and the write.
	ErrStaleFile = errors.New("file changed since it was reviewed")

	// ErrBackupFailed is returned when the pre-edit backup could not be
	// written. The target file is left untouched.
	ErrBackupFailed = errors.New("backup failed")

	// ErrInvalidPattern is returned when a search pattern is not a valid
	// regular expression.
	ErrInvalidPattern = errors.New("invalid search pattern")

	// ErrBinary is returned when a file is not UTF-8 text.
	ErrBinary = errors.New("file is not UTF-8 text")
)
