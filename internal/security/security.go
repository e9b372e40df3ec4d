// Package security holds the secret-handling and abuse controls shared by
// the tools and the gateway: the credential store, secret redaction,
// subprocess environment scrubbing, sliding-window rate limits, input
// bounds and the JSON-lines audit trail.
package security

import "errors"

// Sentinel errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTooLarge    = errors.New("input exceeds maximum size")
	ErrTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON = errors.New("invalid JSON")
)
