// Package eventlog stores the transcript events of each session so a
// reconnecting client can replay them. Approval decisions are not stored;
// a pending approval does not survive a restart.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flemzord/codeclaw/internal/transcript"
)

// ErrOutOfOrder is returned when an appended event's Seq does not follow the
// last stored one for the session.
var ErrOutOfOrder = errors.New("eventlog: event out of order")

// Log is an append-only per-session event store.
type Log interface {
	// Append stores ev. Its Seq must be greater than every stored Seq for
	// the session.
	Append(ctx context.Context, sessionID string, ev transcript.Event) error

	// Events returns the stored events with Seq > afterSeq, in order.
	Events(ctx context.Context, sessionID string, afterSeq uint64) ([]transcript.Event, error)
}

// Memory is the in-process Log.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]transcript.Event
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]transcript.Event)}
}

// Compile-time interface check.
var _ Log = (*Memory)(nil)

// Append implements Log.
func (m *Memory) Append(ctx context.Context, sessionID string, ev transcript.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.sessions[sessionID]
	if n := len(events); n > 0 && ev.Seq <= events[n-1].Seq {
		return fmt.Errorf("%w: seq %d after %d", ErrOutOfOrder, ev.Seq, events[n-1].Seq)
	}
	m.sessions[sessionID] = append(events, ev)
	return nil
}

// Events implements Log.
func (m *Memory) Events(ctx context.Context, sessionID string, afterSeq uint64) ([]transcript.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.sessions[sessionID]
	for i, ev := range events {
		if ev.Seq > afterSeq {
			result := make([]transcript.Event, len(events)-i)
			copy(result, events[i:])
			return result, nil
		}
	}
	return nil, nil
}
