package sqlite

import (
	"fmt"
	"time"
)

// Journal modes accepted by Config.Journal.
const (
	JournalWAL    = "wal"
	JournalDelete = "delete"
)

// Config selects the database file and its locking behaviour.
type Config struct {
	Path string `yaml:"path"`
	// Journal is "wal" (default) or "delete".
	Journal string `yaml:"journal"`
	// BusyTimeout bounds how long a write waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	if c.Journal == "" {
		c.Journal = JournalWAL
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path is required")
	}
	switch c.Journal {
	case JournalWAL, JournalDelete:
	default:
		return fmt.Errorf("sqlite: unknown journal mode %q", c.Journal)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: negative busy_timeout %s", c.BusyTimeout)
	}
	return nil
}

func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + c.Journal,
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
	}
}
