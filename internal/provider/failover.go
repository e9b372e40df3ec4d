package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Backoff bounds for a provider that failed with a retryable error.
const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Entry names a provider inside a Failover.
type Entry struct {
	Name     string
	Provider Provider
}

type failoverEntry struct {
	Entry

	mu       sync.Mutex
	failures int
	until    time.Time
}

func (e *failoverEntry) available(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !now.Before(e.until)
}

func (e *failoverEntry) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
	e.until = time.Time{}
}

// recordFailure puts the entry in cooldown with exponential backoff and
// returns the cooldown length.
func (e *failoverEntry) recordFailure(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	backoff := initialBackoff << min(e.failures-1, 6)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	e.until = now.Add(backoff)
	return backoff
}

// Failover streams from the first available provider and moves on to the
// next one when a stream cannot be opened for a retryable reason. Once a
// stream has started it is never switched; a mid-stream failure only cools
// the provider down for later requests.
type Failover struct {
	entries []*failoverEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewFailover creates a Failover over entries, tried in order.
func NewFailover(logger *slog.Logger, entries ...Entry) (*Failover, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Failover{logger: logger, now: time.Now}
	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		f.entries = append(f.entries, &failoverEntry{Entry: e})
	}
	return f, nil
}

// Compile-time interface check.
var _ Provider = (*Failover)(nil)

// ModelName implements Provider. It reports the first entry's model.
func (f *Failover) ModelName() string {
	return f.entries[0].Provider.ModelName()
}

// Stream implements Provider.
func (f *Failover) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for _, e := range f.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.available(f.now()) {
			continue
		}

		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			return f.watch(ch, e), nil
		}
		lastErr = err

		// Non-retryable errors stop failover.
		if !IsRetryable(err) {
			return nil, err
		}

		backoff := e.recordFailure(f.now())
		f.logger.Warn("provider failed, failing over",
			"provider", e.Name,
			"backoff", backoff,
			"kind", Classify(err),
			"error", err,
		)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	return nil, fmt.Errorf("%w: all providers cooling down", ErrAllProviders)
}

// watch forwards src and records the provider's health once it ends.
func (f *Failover) watch(src <-chan StreamChunk, e *failoverEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		var failed bool
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) && !failed {
				failed = true
				e.recordFailure(f.now())
				f.logger.Warn("mid-stream error degraded provider",
					"provider", e.Name,
					"error", chunk.Err,
				)
			}
			out <- chunk
		}
		if !failed {
			e.recordSuccess()
		}
	}()
	return out
}

// Status is the health of one Failover entry.
type Status struct {
	Name          string    `json:"name"`
	Model         string    `json:"model"`
	Available     bool      `json:"available"`
	Failures      int       `json:"failures"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
}

// Status reports every entry in failover order.
func (f *Failover) Status() []Status {
	now := f.now()
	out := make([]Status, 0, len(f.entries))
	for _, e := range f.entries {
		e.mu.Lock()
		st := Status{
			Name:      e.Name,
			Model:     e.Provider.ModelName(),
			Available: !now.Before(e.until),
			Failures:  e.failures,
		}
		if !st.Available {
			st.CooldownUntil = e.until
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	return out
}
