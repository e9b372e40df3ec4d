// Package crontest provides a recording job for scheduler tests.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/codeclaw/internal/cron"
)

// RecordingJob counts runs and signals the first one on Started.
type RecordingJob struct {
	cron.Func

	once    sync.Once
	started chan struct{}

	mu   sync.Mutex
	runs int
}

// NewRecordingJob returns a job named name scheduled by expr. fn may be nil.
func NewRecordingJob(name, expr string, fn func(context.Context) error) *RecordingJob {
	return &RecordingJob{
		Func:    cron.Func{JobName: name, Spec: expr, Fn: fn},
		started: make(chan struct{}),
	}
}

func (j *RecordingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	j.once.Do(func() { close(j.started) })
	return j.Func.Run(ctx)
}

// Started is closed once Run has been entered.
func (j *RecordingJob) Started() <-chan struct{} { return j.started }

// Runs reports how many times Run was entered.
func (j *RecordingJob) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}
