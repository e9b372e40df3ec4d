package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flemzord/codeclaw/internal/security"
)

// Definition is what the model is told about a tool.
type Definition struct {
	Name        Name
	Description string
	Schema      json.RawMessage
}

// Registry holds the registered tools and drives calls through the
// lifecycle. It is instance-based (not global) for better testability.
type Registry struct {
	mu          sync.RWMutex
	tools       map[Name]Tool
	auditLogger *security.AuditLogger
	rateLimiter *security.RateLimiter
	now         func() time.Time
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[Name]Tool),
		now:   time.Now,
	}
}

// SetAuditLogger configures audit logging for tool calls.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogger = logger
}

// SetRateLimiter configures rate limiting for tool calls.
func (r *Registry) SetRateLimiter(limiter *security.RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = limiter
}

// Register adds a tool to the registry. The tool's name must belong to the
// closed set.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if !name.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if len(t.Scopes()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoScopes, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name, or ErrUnknownTool.
func (r *Registry) Get(name Name) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Definitions returns all registered tools sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for name, t := range r.tools {
		defs = append(defs, Definition{
			Name:        name,
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	slices.SortFunc(defs, func(a, b Definition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunOptions carries the per-session collaborators of Run.
type RunOptions struct {
	// SessionID is recorded on audit events.
	SessionID string

	// Requester decides calls that need approval. Without one such calls
	// fail with ErrNoApprover.
	Requester ApprovalRequester

	// Observe, if set, receives a copy of the call after every state change.
	Observe func(Call)
}

// Run drives call from input-streaming to a terminal state: decode → rate
// limit → assess → blocked | allow | approval → execute → audit. The returned
// error is the failure recorded in the call's ErrorText, or nil when the call
// ended output-available (including a rejected approval).
func (r *Registry) Run(ctx context.Context, call *Call, opts RunOptions) error {
	r.mu.RLock()
	rl := r.rateLimiter
	al := r.auditLogger
	r.mu.RUnlock()

	run := &callRun{call: call, opts: opts, audit: al}

	if call.State != StateInputStreaming && call.State != StateInputAvailable {
		return fmt.Errorf("%w: call %s is %s", ErrIllegalTransition, call.ID, call.State)
	}

	if call.Input == nil {
		in, err := DecodeInput(string(call.Name), call.Args)
		if err != nil {
			return run.fail(err)
		}
		call.Input = in
	}
	if call.State == StateInputStreaming {
		if err := run.move(StateInputAvailable); err != nil {
			return err
		}
	}

	t, err := r.Get(call.Name)
	if err != nil {
		return run.fail(err)
	}

	if rl != nil {
		if err := rl.Allow(security.LimitToolCall); err != nil {
			run.log(security.EventRateLimit, "tool_call rate limit exceeded", nil)
			return run.fail(fmt.Errorf("tool %s: %w", call.Name, err))
		}
	}

	// Truncate args to prevent audit log bloat from large payloads.
	run.log(security.EventToolCall, truncateForAudit(string(call.Args)), nil)

	assessment, err := t.Assess(ctx, call.Input)
	if err != nil {
		return run.fail(err)
	}

	switch assessment.Requirement {
	case Allow:
	case Blocked:
		run.log(security.EventBlocked, assessment.Reason, nil)
		return run.fail(fmt.Errorf("%w: %s", ErrBlocked, assessment.Reason))
	case RequiresApproval:
		approved, err := run.approve(ctx, assessment, r.now())
		if err != nil || !approved {
			if rel, ok := t.(Releaser); ok {
				rel.Release(call.Input)
			}
			return err
		}
	default:
		return run.fail(fmt.Errorf("%w: %s (unknown requirement %q)", ErrBlocked, call.Name, assessment.Requirement))
	}

	output, err := t.Execute(ctx, call.Input)
	if err != nil {
		run.log(security.EventToolResult, "error: "+err.Error(), map[string]string{"is_error": "true"})
		return run.fail(err)
	}

	run.log(security.EventToolResult, truncateForAudit(output.Content), map[string]string{"is_error": "false"})
	return run.finish(output)
}

// callRun is the bookkeeping of one Run invocation.
type callRun struct {
	call  *Call
	opts  RunOptions
	audit *security.AuditLogger
}

func (c *callRun) move(next State) error {
	if err := c.call.Transition(next); err != nil {
		return err
	}
	c.observe()
	return nil
}

func (c *callRun) observe() {
	if c.opts.Observe != nil {
		c.opts.Observe(c.call.Clone())
	}
}

func (c *callRun) fail(cause error) error {
	c.call.ErrorText = cause.Error()
	if err := c.move(StateOutputError); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (c *callRun) finish(out Output) error {
	c.call.Output = &out
	return c.move(StateOutputAvailable)
}

// approve parks the call on the requester. It returns true when the call may
// run; a rejection has already finished the call.
func (c *callRun) approve(ctx context.Context, a Assessment, now time.Time) (bool, error) {
	if c.opts.Requester == nil {
		return false, c.fail(fmt.Errorf("%w: %s", ErrNoApprover, c.call.Name))
	}
	c.call.ApprovalSummary = a.Summary
	if err := c.call.Transition(StateApprovalRequested); err != nil {
		return false, err
	}

	// approval-requested is published once the requester can take a
	// decision; observers may answer it immediately.
	announced := false
	announce := func() {
		if !announced {
			announced = true
			c.observe()
		}
	}
	resp, err := c.opts.Requester.RequestApproval(ctx, ApprovalRequest{
		ID:        c.call.ID,
		CallID:    c.call.ID,
		ToolName:  c.call.Name,
		Summary:   a.Summary,
		CreatedAt: now,
		Ready:     announce,
	})
	announce()
	if err != nil {
		// No explicit decision: timeout, teardown or cancellation.
		resp = ApprovalResponse{Approved: false, Reason: err.Error()}
	}

	if !resp.Approved {
		c.log(security.EventApproval, "rejected", map[string]string{"reason": resp.Reason})
		if err := c.move(StateRejected); err != nil {
			return false, err
		}
		return false, c.finish(CancelledOutput(c.call.Name, resp.Reason))
	}

	c.log(security.EventApproval, "approved", nil)
	if err := c.move(StateApproved); err != nil {
		return false, err
	}
	return true, nil
}

func (c *callRun) log(typ security.EventType, detail string, meta map[string]string) {
	if c.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["state"] = string(c.call.State)
	c.audit.Log(security.AuditEvent{
		Type:      typ,
		SessionID: c.opts.SessionID,
		CallID:    c.call.ID,
		ToolName:  string(c.call.Name),
		Detail:    detail,
		Metadata:  meta,
	})
}

// maxAuditDetailLen is the maximum length of audit detail strings.
// Longer values are truncated to prevent log bloat from large tool outputs.
const maxAuditDetailLen = 4096

// truncateForAudit truncates a string to maxAuditDetailLen, appending
// a truncation indicator if the string was shortened.
// It walks back to a valid UTF-8 rune boundary to avoid splitting multi-byte
// characters when the cut falls mid-rune.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
