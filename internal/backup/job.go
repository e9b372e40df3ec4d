package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/flemzord/codeclaw/internal/cron"
)

// PruneJob removes expired backups on a cron schedule.
type PruneJob struct {
	Dir          string
	Retention    time.Duration
	ScheduleExpr string
	Logger       *slog.Logger

	// Now overrides time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ cron.Job = (*PruneJob)(nil)

// Name implements cron.Job.
func (j *PruneJob) Name() string { return "backup_prune" }

// Schedule implements cron.Job.
func (j *PruneJob) Schedule() string { return j.ScheduleExpr }

// Run implements cron.Job.
func (j *PruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	removed, err := Prune(j.Dir, j.Retention, now())
	if len(removed) > 0 && j.Logger != nil {
		j.Logger.Info("backup: pruned expired backups", "count", len(removed), "retention", j.Retention)
	}
	return err
}
