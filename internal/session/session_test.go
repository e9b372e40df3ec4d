package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/eventlog"
	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/provider/providertest"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/tool/tooltest"
	"github.com/flemzord/codeclaw/internal/transcript"
)

func turn(chunks ...provider.StreamChunk) []provider.StreamChunk { return chunks }

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tt := range tools {
		if err := reg.Register(tt); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return reg
}

func onlyCall(t *testing.T, tr transcript.Transcript) transcript.ToolCall {
	t.Helper()
	calls := tr.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	return calls[0]
}

func waitPending(t *testing.T, g *approval.Gate) approval.Request {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p := g.Pending(); len(p) > 0 {
			return p[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no pending approval")
	return approval.Request{}
}

func TestSend_TextOnly(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(turn(
		providertest.Text("Hel"),
		providertest.Text("lo"),
		providertest.Stop(provider.FinishReasonStop),
	))
	s := session.New(session.Config{}, p, newRegistry(t))
	defer s.Close()

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tr := s.Transcript()
	if len(tr.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(tr.Messages))
	}
	if m := tr.Messages[0]; m.Role != transcript.RoleUser || m.Text() != "hi" || !m.Done {
		t.Errorf("user message = %+v", m)
	}
	if m := tr.Messages[1]; m.Role != transcript.RoleAssistant || m.Text() != "Hello" || !m.Done {
		t.Errorf("assistant message = %+v", m)
	}

	reqs := p.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 || msgs[0].Role != provider.MessageRoleSystem || msgs[0].Content != session.DefaultSystemPrompt {
		t.Errorf("request messages = %+v", msgs)
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	t.Parallel()

	s := session.New(session.Config{}, providertest.NewScripted(), newRegistry(t))
	defer s.Close()
	if err := s.Send(context.Background(), "  \n"); !errors.Is(err, session.ErrEmptyMessage) {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestSend_ToolCallRoundTrip(t *testing.T) {
	t.Parallel()

	list := tooltest.SimpleTool(tool.List, tool.Allow)
	p := providertest.NewScripted(
		turn(
			providertest.Text("Looking."),
			provider.StreamChunk{ToolCalls: []provider.ToolCallDelta{{Index: 0, ID: "c1", Name: "list", ArgumentsDelta: `{"pa`}}},
			provider.StreamChunk{ToolCalls: []provider.ToolCallDelta{{Index: 0, ArgumentsDelta: `th":"."}`}}},
			providertest.Stop(provider.FinishReasonToolUse),
		),
		turn(providertest.Text("Done."), providertest.Stop(provider.FinishReasonStop)),
	)
	s := session.New(session.Config{}, p, newRegistry(t, list))
	defer s.Close()

	if err := s.Send(context.Background(), "what is here?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tr := s.Transcript()
	call := onlyCall(t, tr)
	if call.CallID != "c1" || call.Args != `{"path":"."}` {
		t.Errorf("call = %+v", call)
	}
	if call.State != tool.StateOutputAvailable || call.Output == nil || call.Output.Content != "executed: list" {
		t.Errorf("call result = %s %+v", call.State, call.Output)
	}
	if len(tr.Messages) != 3 || tr.Messages[2].Text() != "Done." {
		t.Errorf("messages = %+v", tr.Messages)
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	second := reqs[1].Messages
	// system, user, assistant with call, tool result
	if len(second) != 4 {
		t.Fatalf("second request messages = %d, want 4", len(second))
	}
	if a := second[2]; a.Role != provider.MessageRoleAssistant || a.Content != "Looking." || len(a.ToolCalls) != 1 || a.ToolCalls[0].ID != "c1" {
		t.Errorf("assistant = %+v", a)
	}
	if r := second[3]; r.Role != provider.MessageRoleTool || r.ToolID != "c1" || r.Content != "executed: list" {
		t.Errorf("tool result = %+v", r)
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "list" {
		t.Errorf("tools = %+v", reqs[0].Tools)
	}
}

func TestSend_UnknownToolFails(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(
		turn(providertest.Call(0, "c1", "deploy", `{}`), providertest.Stop(provider.FinishReasonToolUse)),
		turn(providertest.Text("sorry"), providertest.Stop(provider.FinishReasonStop)),
	)
	s := session.New(session.Config{}, p, newRegistry(t))
	defer s.Close()

	if err := s.Send(context.Background(), "deploy"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	call := onlyCall(t, s.Transcript())
	if call.State != tool.StateOutputError || !strings.Contains(call.ErrorText, "unknown tool") {
		t.Errorf("call = %s %q", call.State, call.ErrorText)
	}
	result := p.Requests()[1].Messages[3]
	if !strings.HasPrefix(result.Content, "Error: ") {
		t.Errorf("tool result = %q", result.Content)
	}
}

func TestSend_Approval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		approve    bool
		wantOutput string
		wantRuns   int
	}{
		{"approved", true, "executed: shell", 1},
		{"rejected", false, "Command cancelled by user", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			shell := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
			p := providertest.NewScripted(
				turn(providertest.Call(0, "c1", "shell", `{"command":"rm old.txt"}`), providertest.Stop(provider.FinishReasonToolUse)),
				turn(providertest.Text("ok"), providertest.Stop(provider.FinishReasonStop)),
			)

			var gate *approval.Gate
			var seen []tool.State
			gate = approval.NewGate(approval.OnRequest(func(req approval.Request) {
				gate.Submit(req.ID, tt.approve)
			}))
			s := session.New(session.Config{}, p, newRegistry(t, shell), session.WithGate(gate))
			defer s.Close()

			_, live, cancel, err := s.Follow(context.Background(), 0, 64)
			if err != nil {
				t.Fatal(err)
			}
			defer cancel()

			if err := s.Send(context.Background(), "clean up"); err != nil {
				t.Fatalf("Send: %v", err)
			}

			call := onlyCall(t, s.Transcript())
			if call.State != tool.StateOutputAvailable || call.Output == nil || call.Output.Content != tt.wantOutput {
				t.Errorf("call = %s %+v", call.State, call.Output)
			}
			if call.Approval == nil || call.Approval.Approved == nil || *call.Approval.Approved != tt.approve {
				t.Errorf("approval = %+v", call.Approval)
			}
			if call.Rejected() == tt.approve {
				t.Errorf("Rejected() = %v", call.Rejected())
			}
			if shell.Executions() != tt.wantRuns {
				t.Errorf("executions = %d, want %d", shell.Executions(), tt.wantRuns)
			}

		drain:
			for {
				select {
				case ev := <-live:
					if ev.Type == transcript.EventToolCallStateChange {
						seen = append(seen, ev.State)
					}
				default:
					break drain
				}
			}
			decided := tool.StateApproved
			if !tt.approve {
				decided = tool.StateRejected
			}
			want := []tool.State{tool.StateInputAvailable, tool.StateApprovalRequested, decided, tool.StateOutputAvailable}
			if len(seen) != len(want) {
				t.Fatalf("states = %v, want %v", seen, want)
			}
			for i := range want {
				if seen[i] != want[i] {
					t.Errorf("states = %v, want %v", seen, want)
					break
				}
			}
		})
	}
}

func TestClose_RejectsPendingApproval(t *testing.T) {
	t.Parallel()

	shell := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
	p := providertest.NewScripted(
		turn(providertest.Call(0, "c1", "shell", `{"command":"make deploy"}`), providertest.Stop(provider.FinishReasonToolUse)),
	)
	s := session.New(session.Config{}, p, newRegistry(t, shell))

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "deploy it") }()

	req := waitPending(t, s.Gate())
	if req.CallID != "c1" || req.ToolName != tool.Shell {
		t.Errorf("pending = %+v", req)
	}
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, session.ErrClosed) {
			t.Errorf("Send error = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Close")
	}

	call := onlyCall(t, s.Transcript())
	if call.State != tool.StateOutputAvailable || !call.Rejected() {
		t.Errorf("call = %s rejected=%v", call.State, call.Rejected())
	}
	if shell.Executions() != 0 {
		t.Error("rejected call must not execute")
	}
	if err := s.Send(context.Background(), "again"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	for _, m := range s.Transcript().Messages {
		if !m.Done {
			t.Errorf("message %s left open", m.ID)
		}
	}
}

func TestSend_Limits(t *testing.T) {
	t.Parallel()

	same := turn(providertest.Call(0, "", "list", `{"path":"."}`), providertest.Stop(provider.FinishReasonToolUse))
	varying := func(path string) []provider.StreamChunk {
		return turn(providertest.Call(0, "", "list", `{"path":"`+path+`"}`), providertest.Stop(provider.FinishReasonToolUse))
	}

	tests := []struct {
		name      string
		cfg       session.Config
		turns     [][]provider.StreamChunk
		wantErr   error
		wantCalls int
	}{
		{
			name:      "loop detected",
			cfg:       session.Config{LoopThreshold: 2},
			turns:     [][]provider.StreamChunk{same, same, same},
			wantErr:   session.ErrLoopDetected,
			wantCalls: 2,
		},
		{
			name:      "max steps",
			cfg:       session.Config{MaxSteps: 2},
			turns:     [][]provider.StreamChunk{varying("a"), varying("b"), varying("c")},
			wantErr:   session.ErrMaxStepsReached,
			wantCalls: 2,
		},
		{
			name: "token budget",
			cfg:  session.Config{TokenBudget: 10},
			turns: [][]provider.StreamChunk{
				append(varying("a"), provider.StreamChunk{Usage: &provider.Usage{TotalTokens: 12}}),
				varying("b"),
			},
			wantErr:   session.ErrTokenBudgetExceeded,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			list := tooltest.SimpleTool(tool.List, tool.Allow)
			s := session.New(tt.cfg, providertest.NewScripted(tt.turns...), newRegistry(t, list))
			defer s.Close()

			err := s.Send(context.Background(), "go")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			calls := s.Transcript().ToolCalls()
			if len(calls) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(calls), tt.wantCalls)
			}
			ids := map[string]bool{}
			for _, c := range calls {
				if !c.State.Terminal() {
					t.Errorf("call %s left in %s", c.CallID, c.State)
				}
				if c.CallID == "" || ids[c.CallID] {
					t.Errorf("call id %q missing or reused", c.CallID)
				}
				ids[c.CallID] = true
			}
		})
	}
}

func TestSend_StreamError(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(turn(
		providertest.Call(0, "c1", "list", `{}`),
		provider.StreamChunk{Err: provider.ErrProviderDown},
	))
	s := session.New(session.Config{}, p, newRegistry(t, tooltest.SimpleTool(tool.List, tool.Allow)))
	defer s.Close()

	if err := s.Send(context.Background(), "go"); !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("error = %v, want ErrProviderDown", err)
	}
	call := onlyCall(t, s.Transcript())
	if call.State != tool.StateOutputError {
		t.Errorf("state = %s, want output-error", call.State)
	}
}

func TestSend_ReusedCallIDsAreReplaced(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(
		turn(providertest.Call(0, "call_0", "list", `{"path":"a"}`), providertest.Stop(provider.FinishReasonToolUse)),
		turn(providertest.Call(0, "call_0", "list", `{"path":"b"}`), providertest.Stop(provider.FinishReasonToolUse)),
		turn(providertest.Text("done"), providertest.Stop(provider.FinishReasonStop)),
	)
	s := session.New(session.Config{}, p, newRegistry(t, tooltest.SimpleTool(tool.List, tool.Allow)))
	defer s.Close()

	if err := s.Send(context.Background(), "go"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := s.Transcript().ToolCalls()
	if len(calls) != 2 || calls[0].CallID != "call_0" || calls[1].CallID == "call_0" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRestore_RebuildsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := eventlog.NewMemory()
	list := tooltest.SimpleTool(tool.List, tool.Allow)

	first := session.New(session.Config{ID: "s1"}, providertest.NewScripted(
		turn(providertest.Call(0, "c1", "list", `{}`), providertest.Stop(provider.FinishReasonToolUse)),
		turn(providertest.Text("one file"), providertest.Stop(provider.FinishReasonStop)),
	), newRegistry(t, list), session.WithEventLog(log))
	if err := first.Send(ctx, "list"); err != nil {
		t.Fatal(err)
	}
	first.Close()

	p := providertest.NewScripted(turn(providertest.Text("bye"), providertest.Stop(provider.FinishReasonStop)))
	second := session.New(session.Config{ID: "s1"}, p, newRegistry(t, list), session.WithEventLog(log))
	defer second.Close()
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got, want := second.Transcript().LastSeq, first.Transcript().LastSeq; got != want {
		t.Errorf("LastSeq = %d, want %d", got, want)
	}

	if err := second.Send(ctx, "thanks"); err != nil {
		t.Fatal(err)
	}
	msgs := p.Requests()[0].Messages
	// system, user, assistant+call, tool, assistant, user
	if len(msgs) != 6 {
		t.Fatalf("messages = %d, want 6: %+v", len(msgs), msgs)
	}
	if msgs[3].ToolID != "c1" || msgs[3].Content != "executed: list" {
		t.Errorf("tool result = %+v", msgs[3])
	}
	if msgs[4].Content != "one file" || msgs[5].Content != "thanks" {
		t.Errorf("tail = %+v", msgs[4:])
	}
}

func TestRestore_SettlesInterruptedCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := eventlog.NewMemory()
	events := []transcript.Event{
		transcript.MessageStart("a1", transcript.RoleAssistant),
		transcript.ToolCallDelta("a1", "c1", tool.Shell, `{"command":"make"}`),
		transcript.StateChange(tool.Call{ID: "c1", Name: tool.Shell, State: tool.StateInputAvailable, Input: tool.ShellInput{Command: "make"}}),
		transcript.StateChange(tool.Call{ID: "c1", Name: tool.Shell, State: tool.StateApprovalRequested, ApprovalSummary: "make"}),
	}
	for i, ev := range events {
		ev.Seq = uint64(i + 1)
		if err := log.Append(ctx, "s1", ev); err != nil {
			t.Fatal(err)
		}
	}

	s := session.New(session.Config{ID: "s1"}, providertest.NewScripted(), newRegistry(t), session.WithEventLog(log))
	defer s.Close()
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	tr := s.Transcript()
	call := onlyCall(t, tr)
	if call.State != tool.StateOutputError || !strings.Contains(call.ErrorText, "interrupted") {
		t.Errorf("call = %s %q", call.State, call.ErrorText)
	}
	if !tr.Messages[0].Done {
		t.Error("interrupted message must be closed")
	}
	if len(s.Gate().Pending()) != 0 {
		t.Error("approvals must not be re-armed")
	}

	stored, err := log.Events(ctx, "s1", 0)
	if err != nil || len(stored) != len(events)+2 {
		t.Errorf("stored events = %d, %v", len(stored), err)
	}
}

func TestFollow_ReplaysThenStreams(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(
		turn(providertest.Text("a"), providertest.Stop(provider.FinishReasonStop)),
		turn(providertest.Text("b"), providertest.Stop(provider.FinishReasonStop)),
	)
	s := session.New(session.Config{}, p, newRegistry(t))
	defer s.Close()
	ctx := context.Background()

	if err := s.Send(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	past, live, cancel, err := s.Follow(ctx, 2, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	if len(past) == 0 || past[0].Seq != 3 {
		t.Fatalf("past = %+v", past)
	}
	last := past[len(past)-1].Seq

	if err := s.Send(ctx, "second"); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-live:
		if ev.Seq != last+1 {
			t.Errorf("first live seq = %d, want %d", ev.Seq, last+1)
		}
	case <-time.After(time.Second):
		t.Fatal("no live event")
	}
}

func TestSend_CallObserver(t *testing.T) {
	t.Parallel()

	p := providertest.NewScripted(
		turn(
			provider.StreamChunk{ToolCalls: []provider.ToolCallDelta{{Index: 0, ID: "c1", Name: "read", ArgumentsDelta: `{"filePath":"a.txt"}`}}},
			providertest.Stop(provider.FinishReasonToolUse),
		),
		turn(providertest.Text("ok"), providertest.Stop(provider.FinishReasonStop)),
	)
	var seen []tool.Call
	s := session.New(session.Config{}, p, newRegistry(t, tooltest.SimpleTool(tool.Read, tool.Allow)),
		session.WithCallObserver(func(c tool.Call) { seen = append(seen, c) }),
	)
	defer s.Close()

	if err := s.Send(context.Background(), "read it"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(seen) != 1 || seen[0].ID != "c1" || seen[0].State != tool.StateOutputAvailable {
		t.Errorf("observed = %+v", seen)
	}
}
