// Package session runs a conversation: it streams model steps, folds them
// into a transcript, and drives the requested tool calls one at a time
// through the registry and the approval gate.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/eventlog"
	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithGate sets the approval gate. Defaults to a gate without timeout.
func WithGate(g *approval.Gate) Option {
	return func(s *Session) { s.gate = g }
}

// WithEventLog sets where emitted events are persisted. Defaults to an
// in-memory log.
func WithEventLog(l eventlog.Log) Option {
	return func(s *Session) { s.events = l }
}

// WithTracer sets the tracer for turn and tool-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// WithIDGenerator overrides how message and fallback call ids are made.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// WithCallObserver registers fn to receive every tool call once it has
// finished.
func WithCallObserver(fn func(tool.Call)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// Session is one conversation with the model. Send may be called from any
// goroutine; turns run one at a time.
type Session struct {
	id       string
	cfg      Config
	provider provider.Provider
	registry *tool.Registry
	gate     *approval.Gate
	reducer  *transcript.Reducer
	events   eventlog.Log
	logger   *slog.Logger
	tracer   trace.Tracer
	newID    func() string

	observers []func(tool.Call)

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// turn serialises Send and Restore. history and callIDs are only
	// touched while it is held.
	turn    sync.Mutex
	history []provider.Message
	callIDs map[string]struct{}

	// emitMu orders reducer emission with the event log append so Follow
	// never misses an event between the two.
	emitMu sync.Mutex
}

// New creates a session over p and the tools in reg.
func New(cfg Config, p provider.Provider, reg *tool.Registry, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg.withDefaults(),
		provider: p,
		registry: reg,
		reducer:  transcript.NewReducer(),
		callIDs:  make(map[string]struct{}),
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("session")
	}
	if s.events == nil {
		s.events = eventlog.NewMemory()
	}
	if s.gate == nil {
		s.gate = approval.NewGate(approval.WithLogger(s.logger))
	}

	s.id = s.cfg.ID
	if s.id == "" {
		s.id = s.newID()
	}
	s.logger = s.logger.With("session", s.id)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Gate returns the approval gate pending calls wait on.
func (s *Session) Gate() *approval.Gate { return s.gate }

// Transcript returns a deep copy of the conversation so far.
func (s *Session) Transcript() transcript.Transcript { return s.reducer.Snapshot() }

// Follow returns the stored events after seq and a channel carrying every
// event emitted from then on. Events are never missing between the two;
// the channel closes when cancel is called or the subscriber falls more
// than buffer events behind.
func (s *Session) Follow(ctx context.Context, after uint64, buffer int) ([]transcript.Event, <-chan transcript.Event, func(), error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	past, err := s.events.Events(ctx, s.id, after)
	if err != nil {
		return nil, nil, nil, err
	}
	live, cancel := s.reducer.Subscribe(buffer)
	return past, live, cancel, nil
}

// Close rejects pending approvals and cancels the running turn,
// including any subprocess it started. It is idempotent.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.gate.Close()
}

// Send appends a user message and runs the model until it answers without
// tool calls, or a limit stops the turn.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.turn.Lock()
	defer s.turn.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	ctx, span := s.tracer.Start(ctx, "session.turn",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("model", s.provider.ModelName()),
		),
	)
	defer span.End()

	err := s.runTurn(ctx, text)
	if err != nil {
		if s.closed.Load() {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("turn ended with error", "error", err)
	}
	return err
}

func (s *Session) runTurn(ctx context.Context, text string) error {
	userID := s.newID()
	for _, ev := range []transcript.Event{
		transcript.MessageStart(userID, transcript.RoleUser),
		transcript.TextDelta(userID, text),
		transcript.MessageEnd(userID),
	} {
		if err := s.emit(ctx, ev); err != nil {
			return err
		}
	}
	s.history = append(s.history, provider.Message{Role: provider.MessageRoleUser, Content: text})

	detector := newLoopDetector(s.cfg.LoopThreshold)
	tracker := &tokenTracker{budget: s.cfg.TokenBudget}
	tools := s.toolDefinitions()

	for step := range s.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tracker.exceeded() {
			return ErrTokenBudgetExceeded
		}

		done, err := s.step(ctx, tools, detector, tracker)
		if err != nil {
			return err
		}
		if done {
			s.logger.Debug("turn complete", "steps", step+1, "tokens", tracker.usage.TotalTokens)
			return nil
		}
	}
	return ErrMaxStepsReached
}

// step runs one model round-trip in its own assistant message and executes
// the calls it requested. It reports true when the model is done.
func (s *Session) step(ctx context.Context, tools []provider.ToolDefinition, detector *loopDetector, tracker *tokenTracker) (bool, error) {
	msgID := s.newID()
	if err := s.emit(ctx, transcript.MessageStart(msgID, transcript.RoleAssistant)); err != nil {
		return false, err
	}
	defer func() { _ = s.emit(ctx, transcript.MessageEnd(msgID)) }()

	req := provider.CompletionRequest{
		Messages: s.requestMessages(),
		Tools:    tools,
	}
	res, err := s.stream(ctx, msgID, req)
	tracker.add(res.usage)
	if err != nil {
		s.failCalls(ctx, res.calls, err)
		return false, err
	}

	calls := res.toolCalls()
	if len(calls) == 0 {
		s.history = append(s.history, provider.Message{
			Role:    provider.MessageRoleAssistant,
			Content: res.content.String(),
		})
		return true, nil
	}

	// Check for loops before recording the assistant message so history
	// never holds calls without results.
	for _, c := range calls {
		if detector.record(c) {
			s.failCalls(ctx, res.calls, ErrLoopDetected)
			return false, ErrLoopDetected
		}
	}

	s.history = append(s.history, provider.Message{
		Role:      provider.MessageRoleAssistant,
		Content:   res.content.String(),
		ToolCalls: calls,
	})

	for i, c := range calls {
		if err := ctx.Err(); err != nil {
			// The provider rejects histories with unanswered calls.
			for _, rest := range res.calls[i:] {
				s.failCall(ctx, rest, err)
			}
			for _, rest := range calls[i:] {
				s.history = append(s.history, toolResult(rest.ID, "Error: "+err.Error()))
			}
			return false, err
		}
		s.history = append(s.history, toolResult(c.ID, s.runCall(ctx, c)))
	}
	return false, nil
}

// runCall drives one call through the registry and returns the text the
// model gets back.
func (s *Session) runCall(ctx context.Context, c provider.ToolCall) string {
	ctx, span := s.tracer.Start(ctx, "tool."+c.Name,
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("tool.call_id", c.ID),
		),
	)
	defer span.End()

	call := tool.NewCall(c.ID, c.Name, c.Arguments)
	err := s.registry.Run(ctx, call, tool.RunOptions{
		SessionID: s.id,
		Requester: s.gate,
		Observe: func(snapshot tool.Call) {
			_ = s.emit(ctx, transcript.StateChange(snapshot))
		},
	})

	for _, fn := range s.observers {
		fn(*call)
	}

	span.SetAttributes(
		attribute.String("tool.state", string(call.State)),
		attribute.Bool("tool.rejected", call.Rejected()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info("tool call failed", "tool", c.Name, "call", c.ID, "error", err)
	}

	switch {
	case call.Output != nil:
		return call.Output.Content
	case call.ErrorText != "":
		return "Error: " + call.ErrorText
	case err != nil:
		return "Error: " + err.Error()
	default:
		return ""
	}
}

// emit folds ev into the transcript and persists it. A persistence failure
// is logged; the in-memory transcript stays authoritative.
func (s *Session) emit(ctx context.Context, ev transcript.Event) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	stamped, err := s.reducer.Emit(ev)
	if err != nil {
		s.logger.Error("transcript rejected event", "type", ev.Type, "error", err)
		return err
	}
	if err := s.events.Append(context.WithoutCancel(ctx), s.id, stamped); err != nil {
		s.logger.Error("event log append failed", "seq", stamped.Seq, "error", err)
	}
	return nil
}

// failCalls ends every announced call of an aborted step in output-error.
func (s *Session) failCalls(ctx context.Context, calls []*pendingCall, cause error) {
	for _, pc := range calls {
		s.failCall(ctx, pc, cause)
	}
}

func (s *Session) failCall(ctx context.Context, pc *pendingCall, cause error) {
	if !pc.announced {
		return
	}
	call := tool.NewCall(pc.id, pc.name, json.RawMessage(pc.args.String()))
	call.ErrorText = cause.Error()
	if err := call.Transition(tool.StateOutputError); err != nil {
		return
	}
	_ = s.emit(ctx, transcript.StateChange(*call))
}

func (s *Session) requestMessages() []provider.Message {
	msgs := make([]provider.Message, 0, len(s.history)+1)
	msgs = append(msgs, provider.Message{Role: provider.MessageRoleSystem, Content: s.cfg.SystemPrompt})
	return append(msgs, s.history...)
}

func (s *Session) toolDefinitions() []provider.ToolDefinition {
	defs := s.registry.Definitions()
	out := make([]provider.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.ToolDefinition{
			Name:        string(d.Name),
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return out
}

func toolResult(callID, content string) provider.Message {
	return provider.Message{Role: provider.MessageRoleTool, Content: content, ToolID: callID}
}
