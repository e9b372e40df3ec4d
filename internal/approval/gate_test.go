package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/security/securitytest"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/tool/tooltest"
)

type outcome struct {
	decision Decision
	err      error
}

// awaitAsync starts Await on its own goroutine and returns once the request
// is pending.
func awaitAsync(t *testing.T, g *Gate, ctx context.Context, id string) <-chan outcome {
	t.Helper()

	done := make(chan outcome, 1)
	go func() {
		d, err := g.Await(ctx, Request{ID: id, CallID: id, ToolName: tool.Shell, Summary: "rm old.txt"})
		done <- outcome{d, err}
	}()

	deadline := time.Now().Add(time.Second)
	for !isPending(g, id) {
		if time.Now().After(deadline) {
			t.Fatalf("request %s never became pending", id)
		}
		time.Sleep(time.Millisecond)
	}
	return done
}

func isPending(g *Gate, id string) bool {
	for _, r := range g.Pending() {
		if r.ID == id {
			return true
		}
	}
	return false
}

func wait(t *testing.T, done <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return")
		return outcome{}
	}
}

func TestGate_Submit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		approved bool
		want     Decision
	}{
		{"approve", true, Approved},
		{"reject", false, Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := NewGate()
			done := awaitAsync(t, g, context.Background(), "call-1")

			if !g.Submit("call-1", tt.approved) {
				t.Fatal("Submit returned false for a pending request")
			}
			o := wait(t, done)
			if o.err != nil || o.decision != tt.want {
				t.Errorf("Await = %s, %v; want %s, nil", o.decision, o.err, tt.want)
			}
			if len(g.Pending()) != 0 {
				t.Error("decided request still pending")
			}
		})
	}
}

func TestGate_SubmitIsExactlyOnce(t *testing.T) {
	t.Parallel()

	g := NewGate()
	done := awaitAsync(t, g, context.Background(), "call-1")

	if !g.Submit("call-1", false) {
		t.Fatal("first Submit returned false")
	}
	if g.Submit("call-1", true) {
		t.Error("second Submit returned true")
	}
	if o := wait(t, done); o.decision != Rejected {
		t.Errorf("decision = %s, want the first one (rejected)", o.decision)
	}
}

func TestGate_ConcurrentSubmits(t *testing.T) {
	t.Parallel()

	g := NewGate()
	done := awaitAsync(t, g, context.Background(), "call-1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Submit("call-1", i%2 == 0) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d submits accepted, want exactly 1", wins)
	}
	wait(t, done)
}

func TestGate_SubmitUnknown(t *testing.T) {
	t.Parallel()

	if NewGate().Submit("nope", true) {
		t.Error("Submit returned true for an unknown id")
	}
}

func TestGate_Duplicate(t *testing.T) {
	t.Parallel()

	g := NewGate()
	done := awaitAsync(t, g, context.Background(), "call-1")

	_, err := g.Await(context.Background(), Request{ID: "call-1"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}

	g.Submit("call-1", true)
	if o := wait(t, done); o.decision != Approved {
		t.Errorf("original request decision = %s, want approved", o.decision)
	}
}

func TestGate_Timeout(t *testing.T) {
	t.Parallel()

	g := NewGate(WithTimeout(20 * time.Millisecond))
	d, err := g.Await(context.Background(), Request{ID: "call-1"})
	if d != Rejected || !errors.Is(err, ErrTimeout) {
		t.Errorf("Await = %s, %v; want rejected, ErrTimeout", d, err)
	}
	if g.Submit("call-1", true) {
		t.Error("late Submit accepted after timeout")
	}
}

func TestGate_ContextCancel(t *testing.T) {
	t.Parallel()

	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	done := awaitAsync(t, g, ctx, "call-1")

	cancel()
	o := wait(t, done)
	if o.decision != Rejected || !errors.Is(o.err, context.Canceled) {
		t.Errorf("Await = %s, %v; want rejected, context.Canceled", o.decision, o.err)
	}
	if len(g.Pending()) != 0 {
		t.Error("cancelled request still pending")
	}
}

func TestGate_CloseRejectsPending(t *testing.T) {
	t.Parallel()

	g := NewGate()
	first := awaitAsync(t, g, context.Background(), "call-1")
	second := awaitAsync(t, g, context.Background(), "call-2")

	g.Close()
	g.Close()

	for _, done := range []<-chan outcome{first, second} {
		o := wait(t, done)
		if o.decision != Rejected || !errors.Is(o.err, ErrClosed) {
			t.Errorf("Await = %s, %v; want rejected, ErrClosed", o.decision, o.err)
		}
	}
	if _, err := g.Await(context.Background(), Request{ID: "call-3"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Await after Close error = %v, want ErrClosed", err)
	}
	if g.Submit("call-1", true) {
		t.Error("Submit accepted after Close")
	}
}

func TestGate_PendingOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, id := range []string{"b", "a", "c"} {
		go func() {
			_, _ = g.Await(ctx, Request{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		}()
	}
	deadline := time.Now().Add(time.Second)
	for len(g.Pending()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("requests never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	var ids []string
	for _, r := range g.Pending() {
		ids = append(ids, r.ID)
	}
	if ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("pending order = %v, want [b a c]", ids)
	}
}

func TestGate_Hooks(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		requested []string
		resolved  []Decision
	)
	g := NewGate(
		OnRequest(func(r Request) {
			mu.Lock()
			requested = append(requested, r.ID)
			mu.Unlock()
		}),
		OnResolve(func(_ Request, d Decision) {
			mu.Lock()
			resolved = append(resolved, d)
			mu.Unlock()
		}),
	)

	done := awaitAsync(t, g, context.Background(), "call-1")
	g.Submit("call-1", true)
	wait(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(requested) != 1 || requested[0] != "call-1" {
		t.Errorf("requested = %v", requested)
	}
	if len(resolved) != 1 || resolved[0] != Approved {
		t.Errorf("resolved = %v", resolved)
	}
}

func TestGate_AuditsImplicitRejection(t *testing.T) {
	t.Parallel()

	rec := securitytest.NewAuditRecorder()

	g := NewGate(WithAudit(rec.Logger, "sess-1"), WithTimeout(10*time.Millisecond))
	_, _ = g.Await(context.Background(), Request{ID: "call-1", CallID: "call-1", ToolName: tool.Edit})

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("got %d audit events, want 2", len(events))
	}
	last := events[1]
	if last.Type != security.EventApproval || last.SessionID != "sess-1" || last.Metadata["reason"] != ErrTimeout.Error() {
		t.Errorf("implicit rejection event = %+v", last)
	}
}

func TestGate_RequestApproval(t *testing.T) {
	t.Parallel()

	g := NewGate()
	done := make(chan tool.ApprovalResponse, 1)
	go func() {
		resp, _ := g.RequestApproval(context.Background(), tool.ApprovalRequest{ID: "call-1", CallID: "call-1"})
		done <- resp
	}()

	deadline := time.Now().Add(time.Second)
	for !g.Submit("call-1", true) {
		if time.Now().After(deadline) {
			t.Fatal("request never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case resp := <-done:
		if !resp.Approved {
			t.Error("response not approved")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return")
	}
}

func TestGate_DecisionOnApprovalRequestedIsAccepted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		approved bool
		runs     int
	}{
		{"approve", true, 1},
		{"reject", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := NewGate()
			reg := tool.NewRegistry()
			shell := tooltest.SimpleTool(tool.Shell, tool.RequiresApproval)
			if err := reg.Register(shell); err != nil {
				t.Fatal(err)
			}

			var accepted bool
			call := tool.NewCall("c-1", "shell", json.RawMessage(`{"command":"touch x"}`))
			err := reg.Run(context.Background(), call, tool.RunOptions{
				Requester: g,
				Observe: func(c tool.Call) {
					if c.State == tool.StateApprovalRequested {
						accepted = g.Submit(c.ID, tt.approved)
					}
				},
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !accepted {
				t.Fatal("decision sent on approval-requested was not accepted")
			}
			if call.State != tool.StateOutputAvailable || call.Rejected() == tt.approved {
				t.Errorf("final state = %s rejected=%v", call.State, call.Rejected())
			}
			if shell.Executions() != tt.runs {
				t.Errorf("executions = %d, want %d", shell.Executions(), tt.runs)
			}
		})
	}
}

func TestGate_ReadyRunsBeforeHooks(t *testing.T) {
	t.Parallel()

	var order []string
	g := NewGate(OnRequest(func(Request) { order = append(order, "hook") }))
	d, err := g.Await(context.Background(), Request{
		ID: "c-1",
		Ready: func() {
			order = append(order, "ready")
			if !isPending(g, "c-1") {
				t.Error("Ready called before the request was pending")
			}
			g.Submit("c-1", true)
		},
	})
	if err != nil || d != Approved {
		t.Fatalf("Await = %s, %v", d, err)
	}
	if len(order) != 2 || order[0] != "ready" || order[1] != "hook" {
		t.Errorf("order = %v", order)
	}
	for _, p := range g.Pending() {
		t.Errorf("still pending: %s", p.ID)
	}
}
