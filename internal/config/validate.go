package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/flemzord/codeclaw/internal/cron"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config and returns every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Workdir != "" {
		if fi, err := os.Stat(cfg.Workdir); err != nil {
			errs = append(errs, fmt.Errorf("config: workdir: %w", err))
		} else if !fi.IsDir() {
			errs = append(errs, fmt.Errorf("config: workdir %q is not a directory", cfg.Workdir))
		}
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of %v", cfg.Log.Level, logLevels))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", cfg.Log.Format))
	}

	errs = append(errs, validateProviders(cfg)...)

	for i, p := range cfg.Classifier.Dangerous {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("config: classifier.dangerous[%d]: %w", i, err))
		}
	}

	if cfg.Tools.ReadLimit < 0 || cfg.Tools.EditLimit < 0 {
		errs = append(errs, errors.New("config: tools limits must not be negative"))
	}
	if cfg.Approval.Timeout < 0 {
		errs = append(errs, errors.New("config: approval.timeout must not be negative"))
	}

	if cfg.Backups.Retention < 0 {
		errs = append(errs, errors.New("config: backups.retention must not be negative"))
	}
	if cfg.Backups.PruneSchedule != "" {
		if cfg.Backups.Retention == 0 {
			errs = append(errs, errors.New("config: backups.prune_schedule needs a non-zero backups.retention"))
		}
		if _, err := cron.Parser.Parse(cfg.Backups.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: backups.prune_schedule: %w", err))
		}
	}

	switch cfg.EventLog.Driver {
	case EventLogMemory, EventLogSQLite:
	default:
		errs = append(errs, fmt.Errorf("config: eventlog.driver %q must be %s or %s", cfg.EventLog.Driver, EventLogMemory, EventLogSQLite))
	}

	if err := cfg.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

func validateProviders(cfg *Config) []error {
	var errs []error
	names := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: providers[%d]: %w", i, err))
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("config: providers[%d]: duplicate name %q", i, p.Name))
		}
		names[p.Name] = true
	}
	return errs
}
