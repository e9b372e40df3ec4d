// Package logger builds the process logger: a colored console handler (or
// JSON) behind a handler that redacts secrets.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/flemzord/codeclaw/internal/security"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is "text" or "json".
	Format string

	// NoColor disables ANSI colors in text output. Colors are also off
	// when the writer is not a terminal.
	NoColor bool

	// Redactor scrubs secrets from messages and attributes. Nil uses the
	// built-in patterns.
	Redactor *security.Redactor
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)

	var inner slog.Handler
	if opts.Format == "json" {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		inner = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor || !isTerminal(w),
		})
	}

	redactor := opts.Redactor
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(&redactHandler{next: inner, redactor: redactor})
}

// Setup creates a stderr logger and installs it as the default.
func Setup(opts Options) *slog.Logger {
	l := New(os.Stderr, opts)
	slog.SetDefault(l)
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
