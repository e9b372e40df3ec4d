package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Input bounds applied when a caller passes zero.
const (
	DefaultMaxInputSize = 1 << 20
	DefaultMaxJSONDepth = 32
)

// CheckSize fails with ErrTooLarge when data is longer than limit bytes.
func CheckSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), limit)
	}
	return nil
}

// CheckJSONDepth fails with ErrTooDeep when data nests objects or arrays
// more than limit levels, and with ErrInvalidJSON when it is malformed.
// The document is scanned token by token, never decoded.
func CheckJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if d == '{' || d == '[' {
			if depth++; depth > limit {
				return fmt.Errorf("%w: more than %d levels", ErrTooDeep, limit)
			}
			continue
		}
		depth--
	}
}
