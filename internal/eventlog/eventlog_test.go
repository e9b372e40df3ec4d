package eventlog

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/codeclaw/internal/transcript"
)

func TestMemory_AppendEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewMemory()

	for i, ev := range []transcript.Event{
		transcript.MessageStart("u1", transcript.RoleUser),
		transcript.TextDelta("u1", "hello"),
		transcript.MessageEnd("u1"),
	} {
		ev.Seq = uint64(i + 1)
		if err := log.Append(ctx, "s1", ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := log.Events(ctx, "s1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("Events = %d, %v; want 3", len(all), err)
	}
	tail, _ := log.Events(ctx, "s1", 2)
	if len(tail) != 1 || tail[0].Type != transcript.EventMessageEnd {
		t.Errorf("tail = %+v", tail)
	}
	none, _ := log.Events(ctx, "other", 0)
	if len(none) != 0 {
		t.Errorf("unknown session returned %d events", len(none))
	}

	tr, err := transcript.Replay(all)
	if err != nil || tr.Messages[0].Text() != "hello" {
		t.Errorf("replay = %+v, %v", tr, err)
	}
}

func TestMemory_OutOfOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewMemory()
	if err := log.Append(ctx, "s1", transcript.Event{Seq: 2, Type: transcript.EventMessageEnd}); err != nil {
		t.Fatal(err)
	}
	err := log.Append(ctx, "s1", transcript.Event{Seq: 2, Type: transcript.EventMessageEnd})
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("error = %v, want ErrOutOfOrder", err)
	}
}
