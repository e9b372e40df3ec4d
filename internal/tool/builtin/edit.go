package builtin

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/flemzord/codeclaw/internal/backup"
	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/security"
	"github.com/flemzord/codeclaw/internal/tool"
)

// EditResult is the structured payload of the edit tool.
type EditResult struct {
	Path       string `json:"path"`
	Changes    int    `json:"changes"`
	BackupPath string `json:"backupPath"`
}

// Edit performs exact-text substitution with a backup taken first.
type Edit struct {
	guard *pathguard.Guard
	audit *security.AuditLogger
	now   func() time.Time
	log   *slog.Logger

	mu sync.Mutex
	// reviewed holds the content hash each path had when its change was
	// previewed for approval.
	reviewed map[string]string
}

// NewEdit creates the edit tool.
func NewEdit(guard *pathguard.Guard, opts Options) *Edit {
	opts = opts.withDefaults()
	return &Edit{
		guard:    guard,
		audit:    opts.Audit,
		now:      opts.Now,
		log:      opts.Logger,
		reviewed: make(map[string]string),
	}
}

func (*Edit) Name() tool.Name { return tool.Edit }
func (*Edit) Description() string {
	return "Edit files using search and replace operations. Supports both single and multiple replacements with automatic backup creation."
}
func (*Edit) Scopes() []tool.Scope    { return []tool.Scope{tool.ScopeReadWrite} }
func (*Edit) Schema() json.RawMessage { return editSchema }

var editSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "filePath": {"type": "string", "description": "Path to the file to edit"},
    "oldString": {"type": "string", "description": "Text to replace (must be unique in the file unless replaceAll is true)"},
    "newString": {"type": "string", "description": "Text to replace it with"},
    "replaceAll": {"type": "boolean", "description": "Replace all occurrences (default: false)"}
  },
  "required": ["filePath", "oldString", "newString"]
}`)

// plan is a validated edit: what the file holds now and what it will hold.
type plan struct {
	path    string
	perm    fs.FileMode
	before  []byte
	after   []byte
	changes int
}

// Assess implements tool.Tool. Every edit needs approval; the summary is
// the file path and a preview of the change.
func (e *Edit) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return tool.Assessment{}, err
	}
	ei, err := inputAs[tool.EditInput](in)
	if err != nil {
		return tool.Assessment{}, err
	}
	p, err := e.plan(ei)
	if err != nil {
		return tool.Assessment{}, err
	}

	e.mu.Lock()
	e.reviewed[p.path] = digest(p.before)
	e.mu.Unlock()

	rel := e.guard.Rel(p.path)
	return tool.NeedsApproval(rel + "\n" + Preview(rel, string(p.before), string(p.after))), nil
}

// Execute implements tool.Tool.
func (e *Edit) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	ei, err := inputAs[tool.EditInput](in)
	if err != nil {
		return tool.Output{}, err
	}
	want, seen := e.takeReviewed(ei.FilePath)
	if err := ctx.Err(); err != nil {
		return tool.Output{}, err
	}
	p, err := e.plan(ei)
	if err != nil {
		return tool.Output{}, err
	}
	if seen && want != digest(p.before) {
		return tool.Output{}, fmt.Errorf("%w: %s", ErrStaleFile, ei.FilePath)
	}

	backupPath, err := e.writeBackup(p)
	if err != nil {
		return tool.Output{}, err
	}

	if err := atomic.WriteFile(p.path, bytes.NewReader(p.after)); err != nil {
		return tool.Output{}, fmt.Errorf("edit %s: %w (original kept at %s)", ei.FilePath, err, e.guard.Rel(backupPath))
	}
	e.log.Debug("edit applied", "path", p.path, "changes", p.changes, "backup", backupPath)

	relBackup := e.guard.Rel(backupPath)
	return tool.Output{
		Content: fmt.Sprintf("Successfully edited %s: %d change(s) made. Backup created at %s", ei.FilePath, p.changes, relBackup),
		Data:    EditResult{Path: e.guard.Rel(p.path), Changes: p.changes, BackupPath: relBackup},
	}, nil
}

// plan validates the input against the current file content.
func (e *Edit) plan(ei tool.EditInput) (plan, error) {
	path, err := e.guard.Resolve(ei.FilePath, pathguard.ModeEdit)
	if err != nil {
		return plan{}, err
	}
	info, err := e.guard.StatFile(path, e.guard.EditLimit())
	if err != nil {
		return plan{}, err
	}
	if strings.TrimSpace(ei.OldString) == "" {
		return plan{}, ErrEmptyPattern
	}

	before, err := os.ReadFile(path)
	if err != nil {
		return plan{}, fmt.Errorf("edit %s: %w", ei.FilePath, err)
	}

	content := string(before)
	count := strings.Count(content, ei.OldString)
	if count == 0 && !ei.ReplaceAll {
		return plan{}, fmt.Errorf("%w: %q in %s", ErrTextNotFound, ei.OldString, ei.FilePath)
	}

	var after string
	if ei.ReplaceAll {
		after = strings.ReplaceAll(content, ei.OldString, ei.NewString)
	} else {
		after = strings.Replace(content, ei.OldString, ei.NewString, 1)
		count = 1
	}

	return plan{
		path:    path,
		perm:    info.Mode().Perm(),
		before:  before,
		after:   []byte(after),
		changes: count,
	}, nil
}

// writeBackup copies the original bytes to <path>.backup.<unix-millis>. The
// backup is synced before the edit proceeds.
func (e *Edit) writeBackup(p plan) (string, error) {
	ts := e.now().UnixMilli()
	for attempt := 0; attempt < 10; attempt++ {
		name := backup.Name(p.path, ts+int64(attempt))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, p.perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}

		_, werr := f.Write(p.before)
		serr := f.Sync()
		cerr := f.Close()
		if err := errors.Join(werr, serr, cerr); err != nil {
			_ = os.Remove(name)
			return "", fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}

		if e.audit != nil {
			e.audit.Log(security.AuditEvent{
				Type:   security.EventBackup,
				Detail: e.guard.Rel(name),
				Metadata: map[string]string{
					"target": e.guard.Rel(p.path),
				},
			})
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: no free backup name for %s", ErrBackupFailed, e.guard.Rel(p.path))
}

// Release implements tool.Releaser. It forgets the preview hash of an edit
// that will not run.
func (e *Edit) Release(in tool.Input) {
	if ei, err := inputAs[tool.EditInput](in); err == nil {
		e.takeReviewed(ei.FilePath)
	}
}

// takeReviewed removes and returns the hash recorded by Assess for raw.
func (e *Edit) takeReviewed(raw string) (string, bool) {
	path, err := e.guard.Resolve(raw, pathguard.ModeEdit)
	if err != nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.reviewed[path]
	delete(e.reviewed, path)
	return h, ok
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
