package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flemzord/codeclaw/internal/session"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Opener builds the session with the given id, restoring whatever the
// event log holds for it.
type Opener func(ctx context.Context, id string) (*session.Session, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxSessions caps the number of open sessions. Zero means no cap.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) { m.max = n }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithTurnObserver registers fn to receive the result of every background
// turn.
func WithTurnObserver(fn func(error)) ManagerOption {
	return func(m *Manager) { m.onTurn = append(m.onTurn, fn) }
}

type managed struct {
	s    *session.Session
	busy atomic.Bool
}

// Manager keeps the sessions the gateway serves and runs their turns in
// the background.
type Manager struct {
	open   Opener
	max    int
	logger *slog.Logger
	onTurn []func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*managed
	closed   bool
}

// NewManager creates a Manager that opens sessions with open.
func NewManager(open Opener, opts ...ManagerOption) *Manager {
	m := &Manager{
		open:     open,
		logger:   slog.Default(),
		sessions: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Open returns the session with id, opening it on first use.
func (m *Manager) Open(ctx context.Context, id string) (*session.Session, error) {
	if !sessionIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, session.ErrClosed
	}
	if e, ok := m.sessions[id]; ok {
		return e.s, nil
	}
	if m.max > 0 && len(m.sessions) >= m.max {
		return nil, ErrTooManySessions
	}

	s, err := m.open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	m.sessions[id] = &managed{s: s}
	m.logger.Info("session opened", "session", id)
	return s, nil
}

// Lookup returns an already open session.
func (m *Manager) Lookup(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// IDs returns the open session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Busy reports whether a turn is running in session id.
func (m *Manager) Busy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return ok && e.busy.Load()
}

// Send starts a turn in session id and returns once it is running. The
// turn outlives the caller's request; Close cancels it.
func (m *Manager) Send(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return session.ErrEmptyMessage
	}
	if _, err := m.Open(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || m.closed {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if !e.busy.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return ErrBusy
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer e.busy.Store(false)

		err := e.s.Send(m.ctx, text)
		if err != nil && !errors.Is(err, session.ErrClosed) {
			m.logger.Warn("background turn failed", "session", id, "error", err)
		}
		for _, fn := range m.onTurn {
			fn(err)
		}
	}()
	return nil
}

// Remove closes session id and forgets it.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		e.s.Close()
		m.logger.Info("session closed", "session", id)
	}
	return ok
}

// Close closes every session and waits for running turns to end.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := make([]*managed, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range all {
		e.s.Close()
	}
	m.cancel()
	m.wg.Wait()
}
