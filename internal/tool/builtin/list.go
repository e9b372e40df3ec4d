package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/tool"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ListResult is the structured payload of the list tool.
type ListResult struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// List lists directory contents.
type List struct {
	guard *pathguard.Guard
}

// NewList creates the list tool.
func NewList(guard *pathguard.Guard) *List {
	return &List{guard: guard}
}

func (*List) Name() tool.Name         { return tool.List }
func (*List) Description() string     { return "List directory contents" }
func (*List) Scopes() []tool.Scope    { return []tool.Scope{tool.ScopeReadOnly} }
func (*List) Schema() json.RawMessage { return listSchema }

var listSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Directory path to list (default: current directory)"}
  }
}`)

// Assess implements tool.Tool. Listing never needs approval.
func (l *List) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	return allowAfter(ctx, func() error {
		li, err := inputAs[tool.ListInput](in)
		if err != nil {
			return err
		}
		_, err = l.guard.Resolve(li.Path, pathguard.ModeList)
		return err
	})
}

// Execute implements tool.Tool.
func (l *List) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	li, err := inputAs[tool.ListInput](in)
	if err != nil {
		return tool.Output{}, err
	}
	path, err := l.guard.Resolve(li.Path, pathguard.ModeList)
	if err != nil {
		return tool.Output{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Output{}, fmt.Errorf("%w: %s", pathguard.ErrNotFound, displayPath(li.Path))
		}
		return tool.Output{}, fmt.Errorf("list %s: %w", displayPath(li.Path), err)
	}

	if !info.IsDir() {
		name := filepath.Base(path)
		return tool.Output{
			Content: name,
			Data: ListResult{
				Path:    l.guard.Rel(path),
				Entries: []Entry{{Name: name, Size: info.Size()}},
			},
		}, nil
	}

	// os.ReadDir returns entries sorted by name.
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return tool.Output{}, fmt.Errorf("list %s: %w", displayPath(li.Path), err)
	}

	result := ListResult{Path: l.guard.Rel(path), Entries: make([]Entry, 0, len(dirEntries))}
	lines := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return tool.Output{}, err
		}

		// Follow symlinks so a link to a directory lists as one.
		fi, err := os.Stat(filepath.Join(path, de.Name()))
		if err != nil {
			fi, err = de.Info()
			if err != nil {
				continue
			}
		}

		e := Entry{Name: de.Name(), IsDir: fi.IsDir()}
		size, name := "-", e.Name+"/"
		if !e.IsDir {
			e.Size = fi.Size()
			size, name = humanize.IBytes(uint64(e.Size)), e.Name
		}
		result.Entries = append(result.Entries, e)
		lines = append(lines, fmt.Sprintf("%8s %s", size, name))
	}

	return tool.Output{Content: strings.Join(lines, "\n"), Data: result}, nil
}

func displayPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "."
	}
	return p
}
