package transcript

import (
	"encoding/json"

	"github.com/flemzord/codeclaw/internal/tool"
)

// EventType identifies a stream event.
type EventType string

// Event types, in the order they typically appear for one message.
const (
	EventMessageStart        EventType = "message-start"
	EventTextDelta           EventType = "text-delta"
	EventReasoningDelta      EventType = "reasoning-delta"
	EventToolCallDelta       EventType = "tool-call-delta"
	EventToolCallStateChange EventType = "tool-call-state-change"
	EventMessageEnd          EventType = "message-end"
)

// Event is one entry of the ordered stream folded by a Reducer. Which fields
// are set depends on Type.
type Event struct {
	// Seq orders events within a session. It starts at 1 and strictly
	// increases.
	Seq  uint64    `json:"seq"`
	Type EventType `json:"type"`

	MessageID string `json:"messageId,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Delta     string `json:"delta,omitempty"`

	CallID    string          `json:"callId,omitempty"`
	ToolName  tool.Name       `json:"toolName,omitempty"`
	State     tool.State      `json:"state,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    *tool.Output    `json:"output,omitempty"`
	ErrorText string          `json:"errorText,omitempty"`
	Approval  *Approval       `json:"approval,omitempty"`
}

// MessageStart opens a message.
func MessageStart(id string, role Role) Event {
	return Event{Type: EventMessageStart, MessageID: id, Role: role}
}

// TextDelta appends visible text to a message.
func TextDelta(messageID, delta string) Event {
	return Event{Type: EventTextDelta, MessageID: messageID, Delta: delta}
}

// ReasoningDelta appends reasoning text to a message.
func ReasoningDelta(messageID, delta string) Event {
	return Event{Type: EventReasoningDelta, MessageID: messageID, Delta: delta}
}

// ToolCallDelta streams tool-call arguments. The first delta for a call id
// creates its part.
func ToolCallDelta(messageID, callID string, name tool.Name, argsDelta string) Event {
	return Event{Type: EventToolCallDelta, MessageID: messageID, CallID: callID, ToolName: name, Delta: argsDelta}
}

// StateChange reports a call's new lifecycle state along with whatever the
// state carries: decoded input, approval details, output or error text.
func StateChange(c tool.Call) Event {
	ev := Event{
		Type:      EventToolCallStateChange,
		CallID:    c.ID,
		ToolName:  c.Name,
		State:     c.State,
		ErrorText: c.ErrorText,
	}
	if c.Input != nil && c.State == tool.StateInputAvailable {
		if data, err := json.Marshal(c.Input); err == nil {
			ev.Input = data
		}
	}
	switch c.State {
	case tool.StateApprovalRequested:
		ev.Approval = &Approval{ID: c.ID, Summary: c.ApprovalSummary}
	case tool.StateApproved, tool.StateRejected:
		approved := c.State == tool.StateApproved
		ev.Approval = &Approval{ID: c.ID, Approved: &approved}
	}
	if c.Output != nil {
		out := *c.Output
		ev.Output = &out
	}
	return ev
}

// MessageEnd closes a message.
func MessageEnd(id string) Event {
	return Event{Type: EventMessageEnd, MessageID: id}
}
