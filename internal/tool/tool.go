// Package tool defines the closed set of coding tools, their typed inputs,
// the per-call lifecycle, and the registry that drives a call from decoded
// arguments through approval to a terminal state. Tools are the primary
// security boundary: every filesystem or process action the model takes goes
// through a registered tool.
package tool

import (
	"context"
	"encoding/json"
)

// Name identifies a tool. The set of names is closed.
type Name string

// Tool names.
const (
	List   Name = "list"
	Read   Name = "read"
	Search Name = "search"
	Edit   Name = "edit"
	Shell  Name = "shell"
)

// Names returns every known tool name in a stable order.
func Names() []Name {
	return []Name{List, Read, Search, Edit, Shell}
}

// Valid reports whether n belongs to the closed tool set.
func (n Name) Valid() bool {
	_, ok := constructors[n]
	return ok
}

// Scope declares what kind of access a tool requires.
// Every tool must declare at least one scope.
type Scope string

// Scope values for tool access requirements.
const (
	ScopeReadOnly  Scope = "read_only"
	ScopeReadWrite Scope = "read_write"
	ScopeExec      Scope = "exec"
)

// Tool is the interface all built-in tools implement.
type Tool interface {
	// Name returns the tool's identifier from the closed set.
	Name() Name

	// Description returns the text shown to the model.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Scopes returns the access scopes this tool requires.
	Scopes() []Scope

	// Assess validates in and decides whether the call may run unattended,
	// needs a human decision, or must never run. It has no side effects.
	// A returned error fails the call before anything is touched.
	Assess(ctx context.Context, in Input) (Assessment, error)

	// Execute performs the call. It is only invoked after Assess allowed it
	// or a human approved it.
	Execute(ctx context.Context, in Input) (Output, error)
}

// Releaser is implemented by tools that keep state from Assess for
// Execute. The registry calls Release when an assessed call will not run.
type Releaser interface {
	Release(in Input)
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the text handed back to the model.
	Content string `json:"content"`

	// Data is the structured payload for renderers.
	Data any `json:"data,omitempty"`

	// Rejected marks the synthetic result of a declined approval.
	Rejected bool `json:"rejected,omitempty"`
}

// CancelledOutput is the result recorded when a human declines a call.
func CancelledOutput(name Name, reason string) Output {
	text := "Command cancelled by user"
	if name == Edit {
		text = "Edit cancelled by user"
	}
	out := Output{Content: text, Rejected: true}
	if reason != "" {
		out.Data = map[string]string{"reason": reason}
	}
	return out
}
