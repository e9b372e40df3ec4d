package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/codeclaw/internal/command"
	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/tool"
)

// ShellResult is the structured payload of the shell tool. Timeouts and
// non-zero exits are reported here rather than as errors.
type ShellResult struct {
	Command        string `json:"command"`
	Classification string `json:"classification"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	ExitCode       int    `json:"exitCode"`
	TimedOut       bool   `json:"timedOut,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
}

// Shell runs command lines through an interpreter.
type Shell struct {
	guard      *pathguard.Guard
	classifier *command.Classifier
	shell      string
	timeout    time.Duration
	maxOutput  int
	creds      *security.CredentialStore
	log        *slog.Logger

	// Stdin feeds write-risk commands. Read-only commands never get input.
	Stdin io.Reader
}

// NewShell creates the shell tool.
func NewShell(guard *pathguard.Guard, classifier *command.Classifier, opts Options) *Shell {
	opts = opts.withDefaults()
	if classifier == nil {
		classifier = command.Default()
	}
	return &Shell{
		guard:      guard,
		classifier: classifier,
		shell:      opts.Shell,
		timeout:    opts.ShellTimeout,
		maxOutput:  opts.MaxOutputBytes,
		creds:      opts.Credentials,
		log:        opts.Logger,
	}
}

func (*Shell) Name() tool.Name { return tool.Shell }
func (*Shell) Description() string {
	return "Execute bash commands. Read-only commands run immediately, write commands require user confirmation."
}
func (*Shell) Scopes() []tool.Scope    { return []tool.Scope{tool.ScopeExec} }
func (*Shell) Schema() json.RawMessage { return shellSchema }

var shellSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "The bash command to execute"}
  },
  "required": ["command"]
}`)

// Assess implements tool.Tool. The command is classified on every call.
func (s *Shell) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return tool.Assessment{}, err
	}
	si, err := inputAs[tool.ShellInput](in)
	if err != nil {
		return tool.Assessment{}, err
	}

	cmd := strings.TrimSpace(si.Command)
	switch s.classifier.Classify(cmd) {
	case command.Dangerous:
		return tool.Block("Command blocked for safety: " + cmd), nil
	case command.ReadOnly:
		return tool.Allowed(), nil
	default:
		return tool.NeedsApproval(cmd), nil
	}
}

// Execute implements tool.Tool. A dangerous command is refused here too, so
// nothing reaches the interpreter without passing the classifier.
func (s *Shell) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	si, err := inputAs[tool.ShellInput](in)
	if err != nil {
		return tool.Output{}, err
	}
	cmdline := strings.TrimSpace(si.Command)
	class := s.classifier.Classify(cmdline)
	if class == command.Dangerous {
		return tool.Output{}, fmt.Errorf("%w: %s", tool.ErrBlocked, cmdline)
	}

	res, err := s.run(ctx, cmdline, class)
	if err != nil {
		return tool.Output{}, err
	}
	return tool.Output{Content: shellText(res, s.timeout), Data: res}, nil
}

func (s *Shell) run(ctx context.Context, cmdline string, class command.Classification) (ShellResult, error) {
	res := ShellResult{Command: cmdline, Classification: string(class)}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout := newCappedBuffer(s.maxOutput)
	stderr := newCappedBuffer(s.maxOutput)

	cmd := exec.CommandContext(runCtx, s.shell, "-c", cmdline)
	cmd.Dir = s.guard.Root()
	cmd.Env = security.ScrubEnv(os.Environ(), s.creds)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if class != command.ReadOnly && s.Stdin != nil {
		cmd.Stdin = s.Stdin
	}
	killProcessGroup(cmd)
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	s.log.Debug("shell command finished", "command", cmdline, "duration", time.Since(start), "error", err)

	res.Stdout = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())
	res.Truncated = stdout.truncated || stderr.truncated

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		// The session was torn down; this is not a command result.
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// The interpreter could not be started.
	res.ExitCode = -1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res, nil
}

func shellText(res ShellResult, timeout time.Duration) string {
	switch {
	case res.TimedOut:
		text := fmt.Sprintf("Command timed out after %s", timeout)
		if res.Stdout != "" {
			text += "\n" + res.Stdout
		}
		if res.Stderr != "" {
			text += "\n" + res.Stderr
		}
		return text
	case res.ExitCode != 0:
		msg := res.Stderr
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return "Command failed with error: " + msg
	case res.Stdout == "":
		return "Command executed successfully (no output)"
	default:
		return res.Stdout
	}
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest without failing the writer.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
