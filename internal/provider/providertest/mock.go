// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/codeclaw/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	StreamFunc    func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc func() string

	mu          sync.Mutex
	StreamCalls int
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc.
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Calls returns how many times Stream was called.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StreamCalls
}

// Chunks returns a closed channel pre-filled with chunks.
func Chunks(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// Text returns a single text chunk.
func Text(s string) provider.StreamChunk {
	return provider.StreamChunk{Content: s}
}

// Call returns a chunk carrying one complete tool call at index i.
func Call(i int, id, name, args string) provider.StreamChunk {
	return provider.StreamChunk{
		ToolCalls: []provider.ToolCallDelta{{Index: i, ID: id, Name: name, ArgumentsDelta: args}},
	}
}

// Stop returns a terminal chunk with the given finish reason.
func Stop(reason provider.FinishReason) provider.StreamChunk {
	return provider.StreamChunk{FinishReason: reason}
}

// Scripted replays one turn per Stream call and records every request.
// A Stream call past the end of the script returns an error.
type Scripted struct {
	mu       sync.Mutex
	turns    [][]provider.StreamChunk
	requests []provider.CompletionRequest
}

// NewScripted creates a Scripted provider with the given turns.
func NewScripted(turns ...[]provider.StreamChunk) *Scripted {
	return &Scripted{turns: turns}
}

// Stream implements provider.Provider.
func (s *Scripted) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	if n >= len(s.turns) {
		return nil, fmt.Errorf("providertest: no scripted turn %d", n+1)
	}
	return Chunks(s.turns[n]...), nil
}

// ModelName implements provider.Provider.
func (s *Scripted) ModelName() string { return "scripted" }

// Requests returns a copy of the requests received so far.
func (s *Scripted) Requests() []provider.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Interface guards.
var (
	_ provider.Provider = (*MockProvider)(nil)
	_ provider.Provider = (*Scripted)(nil)
)
