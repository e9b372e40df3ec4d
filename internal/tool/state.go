package tool

import (
	"encoding/json"
	"fmt"
	"slices"
)

// State is a tool call's lifecycle state.
type State string

// Lifecycle states. A call moves
// input-streaming → input-available → [approval-requested → approved|rejected]
// → output-available | output-error.
const (
	StateInputStreaming    State = "input-streaming"
	StateInputAvailable    State = "input-available"
	StateApprovalRequested State = "approval-requested"
	StateApproved          State = "approved"
	StateRejected          State = "rejected"
	StateOutputAvailable   State = "output-available"
	StateOutputError       State = "output-error"
)

var transitions = map[State][]State{
	StateInputStreaming:    {StateInputStreaming, StateInputAvailable, StateOutputError},
	StateInputAvailable:    {StateApprovalRequested, StateOutputAvailable, StateOutputError},
	StateApprovalRequested: {StateApproved, StateRejected, StateOutputError},
	StateApproved:          {StateOutputAvailable, StateOutputError},
	StateRejected:          {StateOutputAvailable},
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateOutputAvailable || s == StateOutputError
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok || s.Terminal()
}

// CanTransition reports whether a call in state s may move to next.
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID   string
	Name Name

	// Args is the raw argument JSON as the model produced it.
	Args json.RawMessage

	// Input is set once Args decode into the tool's typed variant.
	Input Input

	State State

	// ApprovalSummary is what the human was shown, set when the call
	// reaches approval-requested.
	ApprovalSummary string

	Output    *Output
	ErrorText string
}

// NewCall returns a call in the input-streaming state.
func NewCall(id string, name string, args json.RawMessage) *Call {
	return &Call{
		ID:    id,
		Name:  Name(name),
		Args:  args,
		State: StateInputStreaming,
	}
}

// Transition moves the call to next or fails with ErrIllegalTransition,
// leaving the call untouched.
func (c *Call) Transition(next State) error {
	if !c.State.CanTransition(next) {
		return fmt.Errorf("%w: call %s %s → %s", ErrIllegalTransition, c.ID, c.State, next)
	}
	c.State = next
	return nil
}

// Rejected reports whether the call ended through a declined approval.
func (c *Call) Rejected() bool {
	return c.Output != nil && c.Output.Rejected
}

// Clone returns a copy that shares no mutable state with c.
func (c *Call) Clone() Call {
	cp := *c
	cp.Args = slices.Clone(c.Args)
	if c.Output != nil {
		out := *c.Output
		cp.Output = &out
	}
	return cp
}
