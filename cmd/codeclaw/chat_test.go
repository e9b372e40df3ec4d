package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/provider/providertest"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/tool/tooltest"
	"github.com/flemzord/codeclaw/internal/transcript"
)

func newChat(t *testing.T, input string, p provider.Provider, tools ...tool.Tool) (*chat, *bytes.Buffer) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader(input))
	c := &chat{
		out:      &out,
		in:       in,
		requests: make(chan approval.Request, 8),
		prompt:   linePrompter{in: in, out: &out},
	}
	gate := approval.NewGate(approval.OnRequest(func(r approval.Request) { c.requests <- r }))
	s := session.New(session.Config{}, p, reg, session.WithGate(gate))
	t.Cleanup(s.Close)

	if err := c.attach(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.detach)
	return c, &out
}

func TestChat_TurnWithApproval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		answer  string
		want    string
		wantRun int
	}{
		{"approved", "y\n", "executed: shell", 1},
		{"rejected", "n\n", "rejected", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			shell := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
			p := providertest.NewScripted(
				[]provider.StreamChunk{
					providertest.Call(0, "c1", "shell", `{"command":"make"}`),
					providertest.Stop(provider.FinishReasonToolUse),
				},
				[]provider.StreamChunk{providertest.Text("All done."), providertest.Stop(provider.FinishReasonStop)},
			)
			c, out := newChat(t, tt.answer, p, shell)

			if err := c.turn(context.Background(), "build it"); err != nil {
				t.Fatalf("turn: %v", err)
			}

			got := out.String()
			for _, want := range []string{"approval required for shell", "run shell", "Allow shell? [y/N]", tt.want, "All done."} {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
			if strings.Contains(got, "build it") {
				t.Errorf("typed input echoed:\n%s", got)
			}
			if shell.Executions() != tt.wantRun {
				t.Errorf("executions = %d, want %d", shell.Executions(), tt.wantRun)
			}
		})
	}
}

func TestChat_Loop(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(
		[]provider.StreamChunk{providertest.Text("Hello!"), providertest.Stop(provider.FinishReasonStop)},
	)
	c, out := newChat(t, "\nhi\nquit\n", p)

	if err := c.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if !strings.Contains(out.String(), "Hello!") {
		t.Errorf("output = %q", out.String())
	}
	if n := len(p.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestRenderer(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := newRenderer(&out)

	approved := true
	events := []transcript.Event{
		{Seq: 1, Type: transcript.EventMessageStart, MessageID: "u1", Role: transcript.RoleUser},
		{Seq: 2, Type: transcript.EventTextDelta, MessageID: "u1", Delta: "list files"},
		{Seq: 3, Type: transcript.EventMessageEnd, MessageID: "u1"},
		{Seq: 4, Type: transcript.EventMessageStart, MessageID: "a1", Role: transcript.RoleAssistant},
		{Seq: 5, Type: transcript.EventReasoningDelta, MessageID: "a1", Delta: "thinking"},
		{Seq: 6, Type: transcript.EventTextDelta, MessageID: "a1", Delta: "Sure."},
		{Seq: 7, Type: transcript.EventToolCallStateChange, CallID: "c1", ToolName: tool.List, State: tool.StateInputAvailable, Input: []byte(`{"path":"."}`)},
		{Seq: 8, Type: transcript.EventToolCallStateChange, CallID: "c1", ToolName: tool.List, State: tool.StateApproved, Approval: &transcript.Approval{ID: "c1", Approved: &approved}},
		{Seq: 9, Type: transcript.EventToolCallStateChange, CallID: "c1", ToolName: tool.List, State: tool.StateOutputAvailable, Output: &tool.Output{Content: strings.Repeat("file\n", 10)}},
		{Seq: 10, Type: transcript.EventToolCallStateChange, CallID: "c2", ToolName: tool.Read, State: tool.StateOutputError, ErrorText: "not found"},
		{Seq: 11, Type: transcript.EventMessageEnd, MessageID: "a1"},
	}
	for _, ev := range events {
		r.Render(ev)
	}
	r.Render(events[5])

	got := out.String()
	for _, want := range []string{"you › list files", "thinking\nSure.", `list {"path":"."}`, "approved", "… 2 more lines", "error: not found"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "Sure.") != 1 {
		t.Errorf("replayed event rendered twice:\n%s", got)
	}
}
