package provider

import (
	"context"
	"errors"
)

var (
	ErrRateLimit     = errors.New("provider rate limited")
	ErrContextLength = errors.New("context length exceeded")
	ErrProviderDown  = errors.New("provider unavailable")
	ErrAllProviders  = errors.New("all providers failed")
	ErrNoProvider    = errors.New("no provider configured")
)

// Kind classifies a provider error for failover decisions and logs.
type Kind string

const (
	KindRateLimit     Kind = "rate_limit"
	KindUnavailable   Kind = "unavailable"
	KindContextLength Kind = "context_length"
	KindExhausted     Kind = "exhausted"
	KindCanceled      Kind = "canceled"
	KindOther         Kind = "other"
)

// Classify maps err onto a Kind. The order matters: an exhausted chain
// wraps the last provider's error and is reported as exhausted.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrAllProviders), errors.Is(err, ErrNoProvider):
		return KindExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrRateLimit):
		return KindRateLimit
	case errors.Is(err, ErrProviderDown):
		return KindUnavailable
	case errors.Is(err, ErrContextLength):
		return KindContextLength
	default:
		return KindOther
	}
}

// IsRetryable reports whether another provider may succeed where this one
// failed.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindRateLimit, KindUnavailable:
		return true
	default:
		return false
	}
}
