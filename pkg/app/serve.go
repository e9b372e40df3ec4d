package app

import (
	"context"
	"errors"

	"github.com/flemzord/codeclaw/internal/backup"
	"github.com/flemzord/codeclaw/internal/cron"
	"github.com/flemzord/codeclaw/internal/gateway"
	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/session"
)

// ServeOptions tunes Serve.
type ServeOptions struct {
	// OnReady is called with the bound address once the gateway listens.
	OnReady func(addr string)
}

// Serve runs the HTTP gateway and the backup pruning schedule until ctx is
// cancelled, then shuts both down.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	metrics := gateway.NewMetrics()

	open := func(ctx context.Context, id string) (*session.Session, error) {
		return a.NewSession(ctx, id, metrics.GateOptions(),
			session.WithCallObserver(metrics.ObserveCall),
		)
	}
	mgr := gateway.NewManager(open,
		gateway.WithMaxSessions(a.Limiter.MaxSessions()),
		gateway.WithManagerLogger(a.Logger),
		gateway.WithTurnObserver(metrics.ObserveTurn),
	)
	defer mgr.Close()

	gwOpts := []gateway.Option{
		gateway.WithLogger(a.Logger),
		gateway.WithMetrics(metrics),
		gateway.WithRateLimiter(a.Limiter),
	}
	if a.Audit != nil {
		gwOpts = append(gwOpts, gateway.WithAudit(a.Audit))
	}
	if h, ok := a.Provider.(*provider.Failover); ok {
		gwOpts = append(gwOpts, gateway.WithHealth(h))
	}
	gw := gateway.New(a.Config.Gateway, mgr, gwOpts...)

	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	if err := gw.Start(ctx); err != nil {
		return errors.Join(err, sched.Stop(context.WithoutCancel(ctx)))
	}
	if opts.OnReady != nil {
		opts.OnReady(gw.Addr())
	}

	<-ctx.Done()
	a.Logger.Info("shutting down")

	stopCtx := context.WithoutCancel(ctx)
	return errors.Join(gw.Stop(stopCtx), sched.Stop(stopCtx))
}

// Scheduler returns a scheduler carrying the backup pruning job when a
// prune schedule is configured. It is not started.
func (a *App) Scheduler() (*cron.Scheduler, error) {
	sched := cron.NewScheduler(a.Logger)
	b := a.Config.Backups
	if b.PruneSchedule == "" {
		return sched, nil
	}
	err := sched.RegisterJob(&backup.PruneJob{
		Dir:          a.Guard.Root(),
		Retention:    b.Retention,
		ScheduleExpr: b.PruneSchedule,
		Logger:       a.Logger,
	})
	return sched, err
}
