package transcript

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/codeclaw/internal/tool"
)

// sequence numbers events from 1.
func sequence(events ...Event) []Event {
	for i := range events {
		events[i].Seq = uint64(i + 1)
	}
	return events
}

func call(id string, name tool.Name, state tool.State) tool.Call {
	return tool.Call{ID: id, Name: name, State: state}
}

// conversation is a full turn: a user message, an assistant message with
// reasoning, text and one rejected edit, then a follow-up answer.
func conversation() []Event {
	edit := call("c1", tool.Edit, tool.StateInputAvailable)
	edit.Input = tool.EditInput{FilePath: "a.txt", OldString: "foo", NewString: "bar"}

	requested := call("c1", tool.Edit, tool.StateApprovalRequested)
	requested.ApprovalSummary = "a.txt\n-foo\n+bar"

	done := call("c1", tool.Edit, tool.StateOutputAvailable)
	cancelled := tool.CancelledOutput(tool.Edit, "")
	done.Output = &cancelled

	return sequence(
		MessageStart("u1", RoleUser),
		TextDelta("u1", "rename foo"),
		MessageEnd("u1"),
		MessageStart("a1", RoleAssistant),
		ReasoningDelta("a1", "need to "),
		ReasoningDelta("a1", "edit"),
		TextDelta("a1", "Editing "),
		TextDelta("a1", "now."),
		ToolCallDelta("a1", "c1", tool.Edit, `{"filePath":`),
		ToolCallDelta("a1", "c1", "", `"a.txt"}`),
		StateChange(edit),
		StateChange(requested),
		StateChange(call("c1", tool.Edit, tool.StateRejected)),
		StateChange(done),
		MessageEnd("a1"),
		MessageStart("a2", RoleAssistant),
		TextDelta("a2", "Cancelled."),
		MessageEnd("a2"),
	)
}

func TestReducer_Fold(t *testing.T) {
	t.Parallel()

	tr, err := Replay(conversation())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(tr.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(tr.Messages))
	}
	a1 := tr.Messages[1]
	kinds := make([]PartKind, len(a1.Parts))
	for i, p := range a1.Parts {
		kinds[i] = p.Kind
	}
	if diff := cmp.Diff([]PartKind{PartReasoning, PartText, PartToolCall}, kinds); diff != "" {
		t.Errorf("part kinds (-want +got):\n%s", diff)
	}
	if a1.Parts[0].Text != "need to edit" || a1.Text() != "Editing now." {
		t.Errorf("text folding wrong: %+v", a1.Parts)
	}

	tc := a1.Parts[2].Tool
	if tc.Args != `{"filePath":"a.txt"}` {
		t.Errorf("args = %q", tc.Args)
	}
	if tc.State != tool.StateOutputAvailable || !tc.Rejected() {
		t.Errorf("tool call = %+v, want rejected output-available", tc)
	}
	if tc.Approval == nil || tc.Approval.Summary != "a.txt\n-foo\n+bar" || tc.Approval.Approved == nil || *tc.Approval.Approved {
		t.Errorf("approval = %+v", tc.Approval)
	}
	var in tool.EditInput
	if err := json.Unmarshal(tc.Input, &in); err != nil || in.FilePath != "a.txt" {
		t.Errorf("input = %s, %v", tc.Input, err)
	}
	if tr.LastSeq != uint64(len(conversation())) {
		t.Errorf("last seq = %d", tr.LastSeq)
	}
	if len(tr.ToolCalls()) != 1 {
		t.Errorf("tool calls = %d, want 1 (never duplicated)", len(tr.ToolCalls()))
	}
}

func TestReplay_Idempotent(t *testing.T) {
	t.Parallel()

	first, err := Replay(conversation())
	if err != nil {
		t.Fatal(err)
	}
	second, err := Replay(conversation())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replays differ (-first +second):\n%s", diff)
	}
}

func TestReplay_SurvivesJSONRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(conversation())
	if err != nil {
		t.Fatal(err)
	}
	var decoded []Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	want, _ := Replay(conversation())
	got, err := Replay(decoded)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded replay differs (-want +got):\n%s", diff)
	}
}

func TestReducer_ReapplyIsNoop(t *testing.T) {
	t.Parallel()

	events := conversation()
	r := NewReducer()
	for _, ev := range events {
		if err := r.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}
	before := r.Snapshot()

	for _, ev := range events[5:] {
		if err := r.Apply(ev); err != nil {
			t.Fatalf("re-apply: %v", err)
		}
	}
	if diff := cmp.Diff(before, r.Snapshot()); diff != "" {
		t.Errorf("re-applied events changed the transcript:\n%s", diff)
	}
}

func TestReducer_Errors(t *testing.T) {
	t.Parallel()

	base := sequence(
		MessageStart("a1", RoleAssistant),
		ToolCallDelta("a1", "c1", tool.Shell, `{"command":"ls"}`),
		StateChange(call("c1", tool.Shell, tool.StateInputAvailable)),
		StateChange(call("c1", tool.Shell, tool.StateOutputAvailable)),
		MessageEnd("a1"),
	)
	next := uint64(len(base) + 1)

	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"unknown message", TextDelta("zz", "x"), ErrUnknownMessage},
		{"duplicate message", MessageStart("a1", RoleAssistant), ErrDuplicateMessage},
		{"bad role", MessageStart("a2", "system"), ErrInvalidEvent},
		{"delta after end", TextDelta("a1", "late"), ErrMessageEnded},
		{"unknown call", StateChange(call("c9", tool.Shell, tool.StateInputAvailable)), ErrUnknownCall},
		{"leave terminal state", StateChange(call("c1", tool.Shell, tool.StateOutputError)), tool.ErrIllegalTransition},
		{"unknown type", Event{Type: "bogus"}, ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewReducer()
			for _, ev := range base {
				if err := r.Apply(ev); err != nil {
					t.Fatal(err)
				}
			}
			before := r.Snapshot()

			ev := tt.ev
			ev.Seq = next
			if err := r.Apply(ev); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff(before, r.Snapshot()); diff != "" {
				t.Errorf("rejected event changed the transcript:\n%s", diff)
			}
		})
	}
}

func TestReducer_RequiresSequence(t *testing.T) {
	t.Parallel()

	if err := NewReducer().Apply(MessageStart("u1", RoleUser)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("error = %v, want ErrInvalidEvent", err)
	}
}

func TestReducer_EmitAssignsSequence(t *testing.T) {
	t.Parallel()

	r := NewReducer()
	first, err := r.Emit(MessageStart("u1", RoleUser))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Emit(TextDelta("u1", "hi"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Seq != 1 || second.Seq != 2 || r.LastSeq() != 2 {
		t.Errorf("seqs = %d, %d, last %d", first.Seq, second.Seq, r.LastSeq())
	}
	if _, err := r.Emit(TextDelta("nope", "x")); err == nil {
		t.Error("expected error")
	}
	if r.LastSeq() != 2 {
		t.Errorf("failed emit advanced the sequence to %d", r.LastSeq())
	}
}

func TestReducer_SnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	r := NewReducer()
	for _, ev := range conversation() {
		if err := r.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}
	snap := r.Snapshot()
	snap.Messages[1].Parts[2].Tool.State = tool.StateOutputError
	snap.Messages[1].Parts[0].Text = "mutated"

	again := r.Snapshot()
	if again.Messages[1].Parts[2].Tool.State != tool.StateOutputAvailable || again.Messages[1].Parts[0].Text == "mutated" {
		t.Error("snapshot shares state with the reducer")
	}
}

func TestReducer_Subscribe(t *testing.T) {
	t.Parallel()

	r := NewReducer()
	ch, cancel := r.Subscribe(8)

	events := conversation()[:3]
	for _, ev := range events {
		if err := r.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range events {
		got := <-ch
		if got.Seq != want.Seq || got.Type != want.Type {
			t.Errorf("got %d %s, want %d %s", got.Seq, got.Type, want.Seq, want.Type)
		}
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
}

func TestReducer_SlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	r := NewReducer()
	ch, cancel := r.Subscribe(1)
	defer cancel()

	for _, ev := range conversation()[:3] {
		if err := r.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}

	if ev, ok := <-ch; !ok || ev.Seq != 1 {
		t.Fatalf("first event = %+v, %v", ev, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("slow subscriber was not dropped")
	}
}
