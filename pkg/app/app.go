// Package app wires configuration into the running pieces shared by the
// codeclaw commands: logger, tools, provider failover, event log, tracing
// and the audit trail.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/command"
	"github.com/flemzord/codeclaw/internal/config"
	"github.com/flemzord/codeclaw/internal/eventlog"
	"github.com/flemzord/codeclaw/internal/eventlog/sqlite"
	"github.com/flemzord/codeclaw/internal/logger"
	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/provider/openai"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/telemetry"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/tool/builtin"
)

// Params configures New.
type Params struct {
	// Version is reported as the service version in traces.
	Version string

	// LogWriter receives log output. Defaults to os.Stderr.
	LogWriter io.Writer

	// Provider replaces the configured providers.
	Provider provider.Provider
}

// App holds the components built from one configuration.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Guard       *pathguard.Guard
	Classifier  *command.Classifier
	Registry    *tool.Registry
	Provider    provider.Provider
	Events      eventlog.Log
	Audit       *security.AuditLogger
	Limiter     *security.RateLimiter
	Credentials *security.CredentialStore
	Tracing     *telemetry.Provider

	closers []func(context.Context) error
}

// New builds an App from a validated configuration. Close releases what it
// opened.
func New(ctx context.Context, cfg *config.Config, params Params) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Credentials = security.NewCredentialStore()
	for _, p := range cfg.Providers {
		if p.APIKey != "" {
			a.Credentials.Set("provider."+p.Name, p.APIKey)
		}
	}
	redactor := security.NewRedactor()
	redactor.SyncCredentials(a.Credentials)

	w := params.LogWriter
	if w == nil {
		w = os.Stderr
	}
	a.Logger = logger.New(w, logger.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		NoColor:  cfg.Log.NoColor,
		Redactor: redactor,
	})

	if err := a.openAudit(redactor); err != nil {
		return a, err
	}
	a.Limiter = security.NewRateLimiter(cfg.RateLimit)

	a.Tracing, err = telemetry.Setup(ctx, cfg.Tracing, params.Version)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Tracing.Shutdown)

	a.Guard, err = pathguard.New(cfg.Workdir,
		pathguard.WithRules(cfg.PathRules()),
		pathguard.WithLimits(cfg.Tools.ReadLimit, cfg.Tools.EditLimit),
	)
	if err != nil {
		return a, err
	}

	rules, err := cfg.CommandRules()
	if err != nil {
		return a, err
	}
	a.Classifier = command.NewClassifier(rules)

	a.Registry = tool.NewRegistry()
	a.Registry.SetAuditLogger(a.Audit)
	a.Registry.SetRateLimiter(a.Limiter)
	err = builtin.Register(a.Registry, a.Guard, a.Classifier, builtin.Options{
		Shell:          cfg.Tools.Shell,
		ShellTimeout:   cfg.Tools.ShellTimeout,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
		Credentials:    a.Credentials,
		Audit:          a.Audit,
		Logger:         a.Logger,
	})
	if err != nil {
		return a, err
	}

	a.Provider = params.Provider
	if a.Provider == nil {
		if a.Provider, err = a.buildProvider(); err != nil {
			return a, err
		}
	}

	if err := a.openEventLog(ctx); err != nil {
		return a, err
	}

	a.Logger.Debug("app ready",
		"workdir", a.Guard.Root(),
		"model", a.Provider.ModelName(),
		"eventlog", cfg.EventLog.Driver,
	)
	return a, nil
}

func (a *App) buildProvider() (provider.Provider, error) {
	entries := make([]provider.Entry, 0, len(a.Config.Providers))
	for _, pc := range a.Config.Providers {
		p, err := openai.New(pc, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		entries = append(entries, provider.Entry{Name: pc.Name, Provider: p})
	}
	return provider.NewFailover(a.Logger, entries...)
}

func (a *App) openAudit(redactor *security.Redactor) error {
	var w io.Writer
	switch path := a.Config.Audit.Path; path {
	case "":
		return nil
	case "-":
		w = os.Stderr
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("audit: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return f.Close() })
		w = f
	}
	a.Audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: w, Redactor: redactor})
	return nil
}

func (a *App) openEventLog(ctx context.Context) error {
	if a.Config.EventLog.Driver != config.EventLogSQLite {
		a.Events = eventlog.NewMemory()
		return nil
	}
	path := a.Config.EventLog.Path
	if path == "" {
		path = filepath.Join(DefaultDataDir(), "events.db")
	}
	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:        path,
		Journal:     a.Config.EventLog.Journal,
		BusyTimeout: a.Config.EventLog.BusyTimeout,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	a.Events = store
	return nil
}

// NewSession opens session id, restoring stored events. An empty id starts
// a fresh session. gateOpts are added to the configured gate options.
func (a *App) NewSession(ctx context.Context, id string, gateOpts []approval.Option, opts ...session.Option) (*session.Session, error) {
	if id == "" {
		id = ulid.Make().String()
	}
	scfg := a.Config.Session
	scfg.ID = id

	gopts := []approval.Option{
		approval.WithTimeout(a.Config.Approval.Timeout),
		approval.WithLogger(a.Logger.With("session", id)),
	}
	if a.Audit != nil {
		gopts = append(gopts, approval.WithAudit(a.Audit, id))
	}
	gopts = append(gopts, gateOpts...)

	base := []session.Option{
		session.WithLogger(a.Logger),
		session.WithEventLog(a.Events),
		session.WithTracer(a.Tracing.Tracer()),
		session.WithGate(approval.NewGate(gopts...)),
	}
	s := session.New(scfg, a.Provider, a.Registry, append(base, opts...)...)
	if err := s.Restore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// DefaultDataDir returns $XDG_DATA_HOME/codeclaw, or ~/.local/share/codeclaw
// when the variable is unset.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "codeclaw")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "codeclaw")
}
