package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/security/securitytest"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/tool/tooltest"
)

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	for _, tt := range tools {
		if err := r.Register(tt); err != nil {
			t.Fatalf("Register(%s): %v", tt.Name(), err)
		}
	}
	return r
}

// recorder collects the states a call passes through.
type recorder struct {
	mu     sync.Mutex
	states []tool.State
}

func (r *recorder) observe(c tool.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, c.State)
}

func (r *recorder) got() []tool.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func TestRegistryRegister_UnknownName(t *testing.T) {
	t.Parallel()

	r := tool.NewRegistry()
	err := r.Register(&tooltest.MockTool{ToolName: "write_file"})
	if !errors.Is(err, tool.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, &tooltest.MockTool{ToolName: tool.Read})
	err := r.Register(&tooltest.MockTool{ToolName: tool.Read})
	if !errors.Is(err, tool.ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryDefinitions_Sorted(t *testing.T) {
	t.Parallel()

	r := newRegistry(t,
		&tooltest.MockTool{ToolName: tool.Shell},
		&tooltest.MockTool{ToolName: tool.Edit},
		&tooltest.MockTool{ToolName: tool.List},
	)
	var names []tool.Name
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	want := []tool.Name{tool.Edit, tool.List, tool.Shell}
	if !slices.Equal(names, want) {
		t.Fatalf("definitions = %v, want %v", names, want)
	}
	if !slices.Equal(r.Names(), want) {
		t.Fatalf("names = %v, want %v", r.Names(), want)
	}
}

func TestRegistryRun_AllowExecutes(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.Read, tool.Allow)
	r := newRegistry(t, mock)
	rec := &recorder{}
	requester := tooltest.Approving()

	call := tool.NewCall("call-1", "read", json.RawMessage(`{"filePath":"notes.txt"}`))
	if err := r.Run(context.Background(), call, tool.RunOptions{Requester: requester, Observe: rec.observe}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if call.State != tool.StateOutputAvailable {
		t.Fatalf("state = %s, want output-available", call.State)
	}
	if call.Output == nil || call.Output.Content != "executed: read" {
		t.Fatalf("output = %+v", call.Output)
	}
	if mock.Executions() != 1 {
		t.Fatalf("executions = %d, want 1", mock.Executions())
	}
	if requester.RequestCount() != 0 {
		t.Fatalf("allowed call asked for approval")
	}
	want := []tool.State{tool.StateInputAvailable, tool.StateOutputAvailable}
	if !slices.Equal(rec.got(), want) {
		t.Fatalf("states = %v, want %v", rec.got(), want)
	}
	if in, ok := call.Input.(tool.ReadInput); !ok || in.FilePath != "notes.txt" {
		t.Fatalf("input = %#v", call.Input)
	}
}

func TestRegistryRun_BlockedNeverExecutes(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.Shell, tool.Blocked)
	r := newRegistry(t, mock)
	requester := tooltest.Approving()

	call := tool.NewCall("call-1", "shell", json.RawMessage(`{"command":"sudo ls"}`))
	err := r.Run(context.Background(), call, tool.RunOptions{Requester: requester})
	if !errors.Is(err, tool.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if call.State != tool.StateOutputError || call.ErrorText == "" {
		t.Fatalf("state = %s error = %q", call.State, call.ErrorText)
	}
	if mock.Executions() != 0 || requester.RequestCount() != 0 {
		t.Fatalf("blocked call executed (%d) or asked (%d)", mock.Executions(), requester.RequestCount())
	}
}

func TestRegistryRun_ApprovedExecutes(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.Edit, tool.RequiresApproval)
	r := newRegistry(t, mock)
	rec := &recorder{}
	requester := tooltest.Approving()

	call := tool.NewCall("call-7", "edit", json.RawMessage(`{"filePath":"a.txt","oldString":"a","newString":"b"}`))
	if err := r.Run(context.Background(), call, tool.RunOptions{Requester: requester, Observe: rec.observe}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []tool.State{
		tool.StateInputAvailable,
		tool.StateApprovalRequested,
		tool.StateApproved,
		tool.StateOutputAvailable,
	}
	if !slices.Equal(rec.got(), want) {
		t.Fatalf("states = %v, want %v", rec.got(), want)
	}
	if mock.Executions() != 1 {
		t.Fatalf("executions = %d, want 1", mock.Executions())
	}
	if mock.Releases() != 0 {
		t.Fatalf("approved call released its assessment")
	}
	if requester.RequestCount() != 1 {
		t.Fatalf("requests = %d, want 1", requester.RequestCount())
	}
	req := requester.Requests[0]
	if req.ID != "call-7" || req.CallID != "call-7" || req.ToolName != tool.Edit || req.Summary != "run edit" {
		t.Fatalf("request = %+v", req)
	}
	if call.ApprovalSummary != "run edit" {
		t.Fatalf("summary = %q", call.ApprovalSummary)
	}
}

func TestRegistryRun_RejectedIsCancelledOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tool tool.Name
		args string
		want string
	}{
		{"shell", tool.Shell, `{"command":"rm old.txt"}`, "Command cancelled by user"},
		{"edit", tool.Edit, `{"filePath":"a.txt","oldString":"a","newString":"b"}`, "Edit cancelled by user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := tooltest.SimpleTool(tt.tool, tool.RequiresApproval)
			r := newRegistry(t, mock)
			rec := &recorder{}

			call := tool.NewCall("c", string(tt.tool), json.RawMessage(tt.args))
			if err := r.Run(context.Background(), call, tool.RunOptions{Requester: tooltest.Rejecting(), Observe: rec.observe}); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if call.State != tool.StateOutputAvailable {
				t.Fatalf("state = %s, want output-available", call.State)
			}
			if !call.Rejected() || call.Output.Content != tt.want {
				t.Fatalf("output = %+v", call.Output)
			}
			if mock.Executions() != 0 {
				t.Fatalf("rejected call executed")
			}
			if mock.Releases() != 1 {
				t.Fatalf("releases = %d, want 1", mock.Releases())
			}
			if !slices.Contains(rec.got(), tool.StateRejected) {
				t.Fatalf("states = %v, missing rejected", rec.got())
			}
		})
	}
}

func TestRegistryRun_RequesterErrorIsImplicitRejection(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
	r := newRegistry(t, mock)
	requester := &tooltest.MockApprovalRequester{
		RequestApprovalFunc: func(context.Context, tool.ApprovalRequest) (tool.ApprovalResponse, error) {
			return tool.ApprovalResponse{}, errors.New("gate closed")
		},
	}

	call := tool.NewCall("c", "shell", json.RawMessage(`{"command":"touch x"}`))
	if err := r.Run(context.Background(), call, tool.RunOptions{Requester: requester}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !call.Rejected() || mock.Executions() != 0 {
		t.Fatalf("call = %+v executions = %d", call, mock.Executions())
	}
}

func TestRegistryRun_NoApprover(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
	r := newRegistry(t, mock)

	call := tool.NewCall("c", "shell", json.RawMessage(`{"command":"touch x"}`))
	err := r.Run(context.Background(), call, tool.RunOptions{})
	if !errors.Is(err, tool.ErrNoApprover) {
		t.Fatalf("expected ErrNoApprover, got %v", err)
	}
	if mock.Executions() != 0 || call.State != tool.StateOutputError {
		t.Fatalf("state = %s executions = %d", call.State, mock.Executions())
	}
}

func TestRegistryRun_UnknownToolIsProtocolError(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, tooltest.SimpleTool(tool.Read, tool.Allow))
	rec := &recorder{}

	call := tool.NewCall("c", "write_file", nil)
	err := r.Run(context.Background(), call, tool.RunOptions{Observe: rec.observe})
	if !errors.Is(err, tool.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !slices.Equal(rec.got(), []tool.State{tool.StateOutputError}) {
		t.Fatalf("states = %v", rec.got())
	}
}

func TestRegistryRun_AssessErrorFailsBeforeExecution(t *testing.T) {
	t.Parallel()

	denied := errors.New("access denied")
	mock := &tooltest.MockTool{
		ToolName: tool.Read,
		AssessFunc: func(context.Context, tool.Input) (tool.Assessment, error) {
			return tool.Assessment{}, denied
		},
	}
	r := newRegistry(t, mock)

	call := tool.NewCall("c", "read", json.RawMessage(`{"filePath":"id_rsa"}`))
	if err := r.Run(context.Background(), call, tool.RunOptions{}); !errors.Is(err, denied) {
		t.Fatalf("expected assess error, got %v", err)
	}
	if mock.Executions() != 0 {
		t.Fatal("executed after failed assessment")
	}
}

func TestRegistryRun_ExecuteErrorIsOutputError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	mock := &tooltest.MockTool{
		ToolName: tool.List,
		ExecuteFunc: func(context.Context, tool.Input) (tool.Output, error) {
			return tool.Output{}, boom
		},
	}
	r := newRegistry(t, mock)

	call := tool.NewCall("c", "list", nil)
	if err := r.Run(context.Background(), call, tool.RunOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if call.State != tool.StateOutputError || call.ErrorText != "boom" {
		t.Fatalf("state = %s error = %q", call.State, call.ErrorText)
	}
}

func TestRegistryRun_TerminalCallCannotRunAgain(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.List, tool.Allow)
	r := newRegistry(t, mock)

	call := tool.NewCall("c", "list", nil)
	if err := r.Run(context.Background(), call, tool.RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err := r.Run(context.Background(), call, tool.RunOptions{})
	if !errors.Is(err, tool.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if call.State != tool.StateOutputAvailable || mock.Executions() != 1 {
		t.Fatalf("state = %s executions = %d", call.State, mock.Executions())
	}
}

func TestRegistryRun_RateLimited(t *testing.T) {
	t.Parallel()

	mock := tooltest.SimpleTool(tool.List, tool.Allow)
	r := newRegistry(t, mock)
	r.SetRateLimiter(security.NewRateLimiter(security.RateLimitConfig{ToolCallsPerMin: 1}))

	first := tool.NewCall("a", "list", nil)
	if err := r.Run(context.Background(), first, tool.RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second := tool.NewCall("b", "list", nil)
	if err := r.Run(context.Background(), second, tool.RunOptions{}); !errors.Is(err, security.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if mock.Executions() != 1 {
		t.Fatalf("executions = %d, want 1", mock.Executions())
	}
}

func TestRegistryRun_Audit(t *testing.T) {
	t.Parallel()

	rec := securitytest.NewAuditRecorder()

	r := newRegistry(t, tooltest.SimpleTool(tool.Shell, tool.RequiresApproval))
	r.SetAuditLogger(rec.Logger)

	call := tool.NewCall("c-1", "shell", json.RawMessage(`{"command":"touch x"}`))
	if err := r.Run(context.Background(), call, tool.RunOptions{SessionID: "s-1", Requester: tooltest.Approving()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, e := range rec.Events() {
		if e.SessionID != "s-1" || e.CallID != "c-1" || e.ToolName != "shell" {
			t.Errorf("event %s missing identity: %+v", e.Type, e)
		}
	}
	want := []security.EventType{security.EventToolCall, security.EventApproval, security.EventToolResult}
	if got := rec.Types(); !slices.Equal(got, want) {
		t.Fatalf("audit types = %v, want %v", got, want)
	}
}
