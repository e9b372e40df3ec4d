// Package cron runs periodic background jobs, such as backup pruning, on
// standard cron expressions.
package cron

import (
	"context"
	"time"
)

// Job is a named task run on a schedule.
type Job interface {
	Name() string
	// Schedule is a five-field expression or a descriptor like "@daily".
	Schedule() string
	// Run is canceled when the scheduler stops.
	Run(ctx context.Context) error
}

// Func adapts a plain function into a Job.
type Func struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error
}

var _ Job = Func{}

func (f Func) Name() string     { return f.JobName }
func (f Func) Schedule() string { return f.Spec }

func (f Func) Run(ctx context.Context) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx)
}

// Next returns the first activation of expr strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := Parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
