package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/codeclaw/internal/cron"
	"github.com/flemzord/codeclaw/internal/cron/crontest"
)

func TestScheduler_RegisterJob_DuplicateName(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(slog.Default())
	if err := s.RegisterJob(cron.Func{JobName: "prune", Spec: "@daily"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := s.RegisterJob(cron.Func{JobName: "prune", Spec: "@hourly"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(cron.Func{JobName: "bad", Spec: "invalid"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop after failed start: %v", err)
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	t.Parallel()

	job := crontest.NewRecordingJob("tick", "@every 1s", func(context.Context) error {
		return errors.New("failures are logged, not fatal")
	})

	s := cron.NewScheduler(slog.Default())
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-job.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if job.Runs() < 1 {
		t.Errorf("runs = %d", job.Runs())
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	t.Parallel()

	var once sync.Once
	canceled := make(chan struct{})
	job := crontest.NewRecordingJob("slow", "@every 1s", func(ctx context.Context) error {
		<-ctx.Done()
		once.Do(func() { close(canceled) })
		return ctx.Err()
	})

	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-job.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-canceled:
	default:
		t.Fatal("running job was not canceled")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(slog.Default())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestParser_Descriptors(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"@daily", "@hourly", "0 3 * * *", "@every 30m"} {
		if _, err := cron.Parser.Parse(expr); err != nil {
			t.Errorf("Parse(%q): %v", expr, err)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"@daily", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := cron.Next(tt.expr, from)
		if err != nil {
			t.Fatalf("Next(%q): %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Next(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
	if _, err := cron.Next("nope", from); err == nil {
		t.Error("expected parse error")
	}
}
