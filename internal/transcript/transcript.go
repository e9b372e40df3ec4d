// Package transcript folds the ordered event stream of a conversation into
// an append-only Transcript of messages and tool-call states.
package transcript

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/flemzord/codeclaw/internal/tool"
)

// Role is the author of a message.
type Role string

// Roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind discriminates message parts.
type PartKind string

// Part kinds.
const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
	PartToolCall  PartKind = "tool-call"
)

// Approval is the approval state shown on a tool-call part. Approved is nil
// while the decision is pending.
type Approval struct {
	ID       string `json:"id"`
	Summary  string `json:"summary,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
}

// ToolCall is the tool-call part payload. Its state changes in place.
type ToolCall struct {
	CallID    string          `json:"callId"`
	ToolName  tool.Name       `json:"toolName"`
	Args      string          `json:"args,omitempty"`
	State     tool.State      `json:"state"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    *tool.Output    `json:"output,omitempty"`
	ErrorText string          `json:"errorText,omitempty"`
	Approval  *Approval       `json:"approval,omitempty"`
}

// Rejected reports whether the call ended through a declined approval.
func (tc *ToolCall) Rejected() bool {
	return tc.Output != nil && tc.Output.Rejected
}

// Part is one ordered piece of a message.
type Part struct {
	Kind PartKind  `json:"kind"`
	Text string    `json:"text,omitempty"`
	Tool *ToolCall `json:"tool,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
	Done  bool   `json:"done"`
}

// Text returns the concatenated text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Transcript is the ordered record of a conversation.
type Transcript struct {
	Messages []Message `json:"messages"`
	// LastSeq is the sequence number of the last applied event.
	LastSeq uint64 `json:"lastSeq"`
}

// ToolCalls returns every tool-call part in order.
func (t Transcript) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, m := range t.Messages {
		for _, p := range m.Parts {
			if p.Tool != nil {
				calls = append(calls, *p.Tool)
			}
		}
	}
	return calls
}

// clone returns a deep copy. Output.Data is shared; it is never mutated
// after the call finishes.
func (t Transcript) clone() Transcript {
	cp := Transcript{LastSeq: t.LastSeq}
	if t.Messages == nil {
		return cp
	}
	cp.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		cp.Messages[i] = m.clone()
	}
	return cp
}

func (m Message) clone() Message {
	cp := m
	cp.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		cp.Parts[i] = p
		if p.Tool != nil {
			cp.Parts[i].Tool = p.Tool.clone()
		}
	}
	return cp
}

func (tc *ToolCall) clone() *ToolCall {
	cp := *tc
	cp.Input = slices.Clone(tc.Input)
	if tc.Output != nil {
		out := *tc.Output
		cp.Output = &out
	}
	if tc.Approval != nil {
		a := *tc.Approval
		if a.Approved != nil {
			v := *a.Approved
			a.Approved = &v
		}
		cp.Approval = &a
	}
	return &cp
}
