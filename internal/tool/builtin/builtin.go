// Package builtin implements the five coding tools: list, read, search, edit
// and shell. Every filesystem path goes through a pathguard.Guard and every
// shell command through a command.Classifier before anything is touched.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/codeclaw/internal/command"
	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/tool"
)

// Defaults for Options.
const (
	DefaultShell          = "bash"
	DefaultShellTimeout   = 10 * time.Second
	DefaultMaxOutputBytes = 1 << 20
)

// Options configures the built-in tools.
type Options struct {
	// Shell is the interpreter invoked as `<Shell> -c <command>`.
	Shell string

	// ShellTimeout bounds each subprocess.
	ShellTimeout time.Duration

	// MaxOutputBytes caps each captured stream of a subprocess.
	MaxOutputBytes int

	// Credentials are scrubbed from the subprocess environment.
	Credentials *security.CredentialStore

	// Audit, if set, records backups.
	Audit *security.AuditLogger

	// Now overrides time.Now for backup names.
	Now func() time.Time

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Shell == "" {
		o.Shell = DefaultShell
	}
	if o.ShellTimeout <= 0 {
		o.ShellTimeout = DefaultShellTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Register adds all five tools to reg.
func Register(reg *tool.Registry, guard *pathguard.Guard, classifier *command.Classifier, opts Options) error {
	opts = opts.withDefaults()
	tools := []tool.Tool{
		NewList(guard),
		NewRead(guard),
		NewSearch(guard),
		NewEdit(guard, opts),
		NewShell(guard, classifier, opts),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// inputAs asserts the concrete input variant a tool expects.
func inputAs[T tool.Input](in tool.Input) (T, error) {
	v, ok := in.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T", tool.ErrInvalidInput, in)
	}
	return v, nil
}

// allowAfter validates in with check and allows the call when it passes.
func allowAfter(ctx context.Context, check func() error) (tool.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return tool.Assessment{}, err
	}
	if err := check(); err != nil {
		return tool.Assessment{}, err
	}
	return tool.Allowed(), nil
}
