package transcript

import (
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/codeclaw/internal/tool"
)

type partRef struct {
	msg  int
	part int
}

// Reducer maintains a Transcript from an ordered event stream. It is safe
// for concurrent use; events are applied one at a time.
type Reducer struct {
	mu       sync.Mutex
	t        Transcript
	messages map[string]int
	calls    map[string]partRef

	subs    map[int]chan Event
	nextSub int
}

// NewReducer returns a Reducer holding an empty transcript.
func NewReducer() *Reducer {
	return &Reducer{
		messages: make(map[string]int),
		calls:    make(map[string]partRef),
		subs:     make(map[int]chan Event),
	}
}

// Replay folds events into a fresh transcript.
func Replay(events []Event) (Transcript, error) {
	r := NewReducer()
	for _, ev := range events {
		if err := r.Apply(ev); err != nil {
			return Transcript{}, err
		}
	}
	return r.Snapshot(), nil
}

// Apply folds ev into the transcript. An event whose Seq is not greater than
// the last applied one is ignored. A rejected event leaves the transcript
// untouched.
func (r *Reducer) Apply(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Seq == 0 {
		return fmt.Errorf("%w: %s without sequence number", ErrInvalidEvent, ev.Type)
	}
	if ev.Seq <= r.t.LastSeq {
		return nil
	}
	return r.applyLocked(ev)
}

// Emit assigns the next sequence number to ev and applies it. The
// sequenced event is returned for persistence.
func (r *Reducer) Emit(ev Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.Seq = r.t.LastSeq + 1
	if err := r.applyLocked(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Snapshot returns a deep copy of the current transcript.
func (r *Reducer) Snapshot() Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t.clone()
}

// LastSeq returns the sequence number of the last applied event.
func (r *Reducer) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t.LastSeq
}

// Subscribe returns a channel receiving every event applied after the call,
// in order. A subscriber that falls more than buffer events behind is
// dropped and its channel closed; it should resume from the event log. The
// returned func unsubscribes.
func (r *Reducer) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Reducer) applyLocked(ev Event) error {
	var err error
	switch ev.Type {
	case EventMessageStart:
		err = r.startMessage(ev)
	case EventTextDelta:
		err = r.appendText(ev, PartText)
	case EventReasoningDelta:
		err = r.appendText(ev, PartReasoning)
	case EventToolCallDelta:
		err = r.appendToolArgs(ev)
	case EventToolCallStateChange:
		err = r.changeState(ev)
	case EventMessageEnd:
		err = r.endMessage(ev)
	default:
		err = fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}
	if err != nil {
		return fmt.Errorf("transcript: event %d: %w", ev.Seq, err)
	}

	r.t.LastSeq = ev.Seq
	r.publish(ev)
	return nil
}

func (r *Reducer) publish(ev Event) {
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			delete(r.subs, id)
			close(ch)
		}
	}
}

func (r *Reducer) startMessage(ev Event) error {
	if ev.MessageID == "" {
		return fmt.Errorf("%w: message-start without id", ErrInvalidEvent)
	}
	if ev.Role != RoleUser && ev.Role != RoleAssistant {
		return fmt.Errorf("%w: role %q", ErrInvalidEvent, ev.Role)
	}
	if _, ok := r.messages[ev.MessageID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, ev.MessageID)
	}
	r.messages[ev.MessageID] = len(r.t.Messages)
	r.t.Messages = append(r.t.Messages, Message{ID: ev.MessageID, Role: ev.Role, Parts: []Part{}})
	return nil
}

// openMessage returns the index of the message ev targets, which must not
// have ended.
func (r *Reducer) openMessage(ev Event) (int, error) {
	i, ok := r.messages[ev.MessageID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMessage, ev.MessageID)
	}
	if r.t.Messages[i].Done {
		return 0, fmt.Errorf("%w: %s", ErrMessageEnded, ev.MessageID)
	}
	return i, nil
}

func (r *Reducer) appendText(ev Event, kind PartKind) error {
	i, err := r.openMessage(ev)
	if err != nil {
		return err
	}
	if ev.Delta == "" {
		return nil
	}

	m := &r.t.Messages[i]
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Kind == kind {
		m.Parts[n-1].Text += ev.Delta
		return nil
	}
	m.Parts = append(m.Parts, Part{Kind: kind, Text: ev.Delta})
	return nil
}

func (r *Reducer) appendToolArgs(ev Event) error {
	i, err := r.openMessage(ev)
	if err != nil {
		return err
	}
	if ev.CallID == "" {
		return fmt.Errorf("%w: tool-call-delta without call id", ErrInvalidEvent)
	}

	if ref, ok := r.calls[ev.CallID]; ok {
		if ref.msg != i {
			return fmt.Errorf("%w: call %s belongs to another message", ErrInvalidEvent, ev.CallID)
		}
		tc := r.t.Messages[ref.msg].Parts[ref.part].Tool
		if tc.State != tool.StateInputStreaming {
			return fmt.Errorf("%w: call %s is %s, not streaming", tool.ErrIllegalTransition, ev.CallID, tc.State)
		}
		tc.Args += ev.Delta
		return nil
	}

	if ev.ToolName == "" {
		return fmt.Errorf("%w: first delta of call %s has no tool name", ErrInvalidEvent, ev.CallID)
	}
	m := &r.t.Messages[i]
	r.calls[ev.CallID] = partRef{msg: i, part: len(m.Parts)}
	m.Parts = append(m.Parts, Part{
		Kind: PartToolCall,
		Tool: &ToolCall{
			CallID:   ev.CallID,
			ToolName: ev.ToolName,
			Args:     ev.Delta,
			State:    tool.StateInputStreaming,
		},
	})
	return nil
}

func (r *Reducer) changeState(ev Event) error {
	ref, ok := r.calls[ev.CallID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCall, ev.CallID)
	}
	tc := r.t.Messages[ref.msg].Parts[ref.part].Tool
	if !tc.State.CanTransition(ev.State) {
		return fmt.Errorf("%w: call %s %s → %s", tool.ErrIllegalTransition, ev.CallID, tc.State, ev.State)
	}

	tc.State = ev.State
	if ev.Input != nil {
		tc.Input = slices.Clone(ev.Input)
	}
	if ev.Output != nil {
		out := *ev.Output
		tc.Output = &out
	}
	if ev.ErrorText != "" {
		tc.ErrorText = ev.ErrorText
	}
	if ev.Approval != nil {
		if tc.Approval == nil {
			tc.Approval = &Approval{ID: ev.Approval.ID}
		}
		if ev.Approval.Summary != "" {
			tc.Approval.Summary = ev.Approval.Summary
		}
		if ev.Approval.Approved != nil {
			v := *ev.Approval.Approved
			tc.Approval.Approved = &v
		}
	}
	return nil
}

func (r *Reducer) endMessage(ev Event) error {
	i, err := r.openMessage(ev)
	if err != nil {
		return err
	}
	r.t.Messages[i].Done = true
	return nil
}
