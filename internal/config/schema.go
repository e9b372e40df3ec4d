// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for codeclaw.
package config

import (
	"time"

	"github.com/flemzord/codeclaw/internal/gateway"
	"github.com/flemzord/codeclaw/internal/provider/openai"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Workdir is the root every tool is confined to. Empty means the
	// process working directory.
	Workdir string `yaml:"workdir"`

	Log LogConfig `yaml:"log"`

	// Providers are tried in order; later entries take over while earlier
	// ones are rate limited or down.
	Providers []openai.Config `yaml:"providers"`

	Session    session.Config           `yaml:"session"`
	Tools      ToolsConfig              `yaml:"tools"`
	Classifier ClassifierConfig         `yaml:"classifier"`
	Approval   ApprovalConfig           `yaml:"approval"`
	Backups    BackupsConfig            `yaml:"backups"`
	Audit      AuditConfig              `yaml:"audit"`
	RateLimit  security.RateLimitConfig `yaml:"rate_limit"`
	EventLog   EventLogConfig           `yaml:"eventlog"`
	Gateway    gateway.Config           `yaml:"gateway"`
	Tracing    telemetry.Config         `yaml:"tracing"`
}

// LogConfig controls the console logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" (colored console) or "json".
	Format string `yaml:"format"`

	NoColor bool `yaml:"no_color"`
}

// ToolsConfig tunes the built-in tools. Sensitive names and extensions
// extend the built-in lists.
type ToolsConfig struct {
	ReadLimit           int64         `yaml:"read_limit"`
	EditLimit           int64         `yaml:"edit_limit"`
	Shell               string        `yaml:"shell"`
	ShellTimeout        time.Duration `yaml:"shell_timeout"`
	MaxOutputBytes      int           `yaml:"max_output_bytes"`
	SensitiveNames      []string      `yaml:"sensitive_names"`
	SensitiveExtensions []string      `yaml:"sensitive_extensions"`
}

// ClassifierConfig extends the built-in command rules.
type ClassifierConfig struct {
	// Dangerous are extra regular expressions matched against the
	// lower-cased command line.
	Dangerous []string `yaml:"dangerous"`

	// ReadOnly are extra leading tokens treated as inspection commands.
	ReadOnly []string `yaml:"read_only"`
}

// ApprovalConfig controls the approval gate.
type ApprovalConfig struct {
	// Timeout rejects an undecided request after this long. Zero waits
	// indefinitely.
	Timeout time.Duration `yaml:"timeout"`
}

// BackupsConfig controls edit backup retention.
type BackupsConfig struct {
	// Retention is how long backups are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is a cron expression for automatic pruning. Empty
	// never schedules it.
	PruneSchedule string `yaml:"prune_schedule"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	// Path is the JSON-lines audit file. Empty disables auditing; "-"
	// writes to stderr.
	Path string `yaml:"path"`
}

// EventLog drivers.
const (
	EventLogMemory = "memory"
	EventLogSQLite = "sqlite"
)

// EventLogConfig selects where transcript events are stored.
type EventLogConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`

	// Journal and BusyTimeout tune the sqlite driver.
	Journal     string        `yaml:"journal"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}
