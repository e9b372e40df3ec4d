// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/codeclaw/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	ToolName    tool.Name
	AssessFunc  func(ctx context.Context, in tool.Input) (tool.Assessment, error)
	ExecuteFunc func(ctx context.Context, in tool.Input) (tool.Output, error)

	mu           sync.Mutex
	ExecuteCalls int
	AssessCalls  int
	ReleaseCalls int
}

// Name implements tool.Tool.
func (m *MockTool) Name() tool.Name {
	if m.ToolName != "" {
		return m.ToolName
	}
	return tool.List
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	return "mock " + string(m.Name())
}

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}

// Scopes implements tool.Tool.
func (m *MockTool) Scopes() []tool.Scope {
	return []tool.Scope{tool.ScopeReadOnly}
}

// Assess implements tool.Tool. It allows every call unless AssessFunc says
// otherwise.
func (m *MockTool) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	m.mu.Lock()
	m.AssessCalls++
	m.mu.Unlock()

	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, in)
	}
	return tool.Allowed(), nil
}

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, in)
	}
	return tool.Output{Content: "ok"}, nil
}

// Release implements tool.Releaser.
func (m *MockTool) Release(tool.Input) {
	m.mu.Lock()
	m.ReleaseCalls++
	m.mu.Unlock()
}

// Releases returns how many times Release ran.
func (m *MockTool) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReleaseCalls
}

// Executions returns how many times Execute ran.
func (m *MockTool) Executions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// MockApprovalRequester is a configurable mock for tool.ApprovalRequester.
type MockApprovalRequester struct {
	RequestApprovalFunc func(ctx context.Context, req tool.ApprovalRequest) (tool.ApprovalResponse, error)

	mu       sync.Mutex
	Requests []tool.ApprovalRequest
}

// RequestApproval implements tool.ApprovalRequester.
func (m *MockApprovalRequester) RequestApproval(ctx context.Context, req tool.ApprovalRequest) (tool.ApprovalResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.RequestApprovalFunc != nil {
		return m.RequestApprovalFunc(ctx, req)
	}
	return tool.ApprovalResponse{Approved: true}, nil
}

// RequestCount returns how many approval requests were made.
func (m *MockApprovalRequester) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Approving returns a requester that approves everything.
func Approving() *MockApprovalRequester {
	return &MockApprovalRequester{}
}

// Rejecting returns a requester that rejects everything.
func Rejecting() *MockApprovalRequester {
	return &MockApprovalRequester{
		RequestApprovalFunc: func(context.Context, tool.ApprovalRequest) (tool.ApprovalResponse, error) {
			return tool.ApprovalResponse{Approved: false}, nil
		},
	}
}

// SimpleTool creates a mock tool with the given name and requirement.
func SimpleTool(name tool.Name, req tool.Requirement) *MockTool {
	return &MockTool{
		ToolName: name,
		AssessFunc: func(context.Context, tool.Input) (tool.Assessment, error) {
			return tool.Assessment{Requirement: req, Summary: "run " + string(name), Reason: "test"}, nil
		},
		ExecuteFunc: func(context.Context, tool.Input) (tool.Output, error) {
			return tool.Output{Content: "executed: " + string(name)}, nil
		},
	}
}

// Interface guards.
var (
	_ tool.Tool              = (*MockTool)(nil)
	_ tool.Releaser          = (*MockTool)(nil)
	_ tool.ApprovalRequester = (*MockApprovalRequester)(nil)
)
