// Package approval parks tool calls that need a human decision. A Gate
// holds at most one pending request per id and accepts exactly one decision
// for it, whichever comes first: an explicit Submit, the timeout, context
// cancellation, or Close.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/tool"
)

// Request is a pending approval. Its ID equals the gated call id.
type Request = tool.ApprovalRequest

// Decision is the outcome of a request.
type Decision string

// Decision values.
const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
)

// Option customises a Gate.
type Option func(*Gate)

// WithTimeout rejects requests left undecided for d. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithClock overrides time.Now for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the gate logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithAudit records requests and implicit rejections in the audit log.
func WithAudit(a *security.AuditLogger, sessionID string) Option {
	return func(g *Gate) {
		g.audit = a
		g.sessionID = sessionID
	}
}

// OnRequest registers a hook called, outside the gate lock, each time a
// request starts waiting.
func OnRequest(fn func(Request)) Option {
	return func(g *Gate) { g.onRequest = append(g.onRequest, fn) }
}

// OnResolve registers a hook called once per request with its outcome.
func OnResolve(fn func(Request, Decision)) Option {
	return func(g *Gate) { g.onResolve = append(g.onResolve, fn) }
}

type result struct {
	decision Decision
	err      error
}

type entry struct {
	req Request
	ch  chan result
}

// Gate is the rendezvous between a parked call and whoever decides it.
type Gate struct {
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
	audit     *security.AuditLogger
	sessionID string
	onRequest []func(Request)
	onResolve []func(Request, Decision)

	mu      sync.Mutex
	pending map[string]*entry
	closed  bool
}

// NewGate creates a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		now:     time.Now,
		log:     slog.Default(),
		pending: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Await registers req, calls req.Ready and blocks until it is decided.
// Timeout, teardown and cancellation return Rejected together with
// ErrTimeout, ErrClosed or the context error.
func (g *Gate) Await(ctx context.Context, req Request) (Decision, error) {
	if req.ID == "" {
		req.ID = req.CallID
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = g.now()
	}

	ready := req.Ready
	req.Ready = nil
	e := &entry{req: req, ch: make(chan result, 1)}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Rejected, ErrClosed
	}
	if _, ok := g.pending[req.ID]; ok {
		g.mu.Unlock()
		return Rejected, fmt.Errorf("%w: %s", ErrDuplicate, req.ID)
	}
	g.pending[req.ID] = e
	g.mu.Unlock()

	g.log.Debug("approval requested", "id", req.ID, "tool", req.ToolName)
	g.record("requested", req, nil)
	if ready != nil {
		ready()
	}
	for _, fn := range g.onRequest {
		fn(req)
	}

	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-e.ch:
		return r.decision, r.err
	case <-expired:
		g.settle(req.ID, result{decision: Rejected, err: ErrTimeout})
	case <-ctx.Done():
		g.settle(req.ID, result{decision: Rejected, err: ctx.Err()})
	}
	// Either our settle won or a concurrent Submit did; the slot holds the
	// single outcome.
	r := <-e.ch
	return r.decision, r.err
}

// Submit decides the request with the given id. It returns false when the id
// is unknown or was already decided.
func (g *Gate) Submit(id string, approved bool) bool {
	d := Rejected
	if approved {
		d = Approved
	}
	return g.settle(id, result{decision: d})
}

// Pending returns the undecided requests, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	reqs := make([]Request, 0, len(g.pending))
	for _, e := range g.pending {
		reqs = append(reqs, e.req)
	}
	g.mu.Unlock()

	slices.SortFunc(reqs, func(a, b Request) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return reqs
}

// Close rejects every pending request and makes later Await calls fail with
// ErrClosed. It is safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	entries := make([]*entry, 0, len(g.pending))
	for id, e := range g.pending {
		entries = append(entries, e)
		delete(g.pending, id)
	}
	g.mu.Unlock()

	for _, e := range entries {
		g.deliver(e, result{decision: Rejected, err: ErrClosed})
	}
}

// RequestApproval implements tool.ApprovalRequester.
func (g *Gate) RequestApproval(ctx context.Context, req tool.ApprovalRequest) (tool.ApprovalResponse, error) {
	d, err := g.Await(ctx, req)
	if err != nil {
		return tool.ApprovalResponse{}, err
	}
	return tool.ApprovalResponse{Approved: d == Approved}, nil
}

func (g *Gate) settle(id string, r result) bool {
	g.mu.Lock()
	e, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	g.deliver(e, r)
	return true
}

// deliver hands r to the waiter. Callers remove e from pending first, so
// each entry is delivered exactly once and the send never blocks.
func (g *Gate) deliver(e *entry, r result) {
	e.ch <- r
	g.log.Debug("approval resolved", "id", e.req.ID, "decision", r.decision, "error", r.err)
	if r.err != nil {
		g.record("implicit rejection", e.req, r.err)
	}
	for _, fn := range g.onResolve {
		fn(e.req, r.decision)
	}
}

func (g *Gate) record(detail string, req Request, cause error) {
	if g.audit == nil {
		return
	}
	meta := map[string]string{}
	if cause != nil {
		meta["reason"] = cause.Error()
	}
	g.audit.Log(security.AuditEvent{
		Type:      security.EventApproval,
		SessionID: g.sessionID,
		CallID:    req.CallID,
		ToolName:  string(req.ToolName),
		Detail:    detail,
		Metadata:  meta,
	})
}

var _ tool.ApprovalRequester = (*Gate)(nil)
