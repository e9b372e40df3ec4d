package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/tool"
)

// ReadResult is the structured payload of the read tool.
type ReadResult struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Read returns the full text of a file.
type Read struct {
	guard *pathguard.Guard
}

// NewRead creates the read tool.
func NewRead(guard *pathguard.Guard) *Read {
	return &Read{guard: guard}
}

func (*Read) Name() tool.Name         { return tool.Read }
func (*Read) Description() string     { return "Read and display file contents" }
func (*Read) Scopes() []tool.Scope    { return []tool.Scope{tool.ScopeReadOnly} }
func (*Read) Schema() json.RawMessage { return readSchema }

var readSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "filePath": {"type": "string", "description": "Path to the file to read"}
  },
  "required": ["filePath"]
}`)

// Assess implements tool.Tool. Reads never need approval, but sensitive or
// oversized files fail here before anything is opened.
func (r *Read) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	return allowAfter(ctx, func() error {
		_, err := r.check(in)
		return err
	})
}

// Execute implements tool.Tool.
func (r *Read) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	if err := ctx.Err(); err != nil {
		return tool.Output{}, err
	}
	path, err := r.check(in)
	if err != nil {
		return tool.Output{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Output{}, fmt.Errorf("read %s: %w", r.guard.Rel(path), err)
	}
	if !utf8.Valid(data) {
		return tool.Output{}, fmt.Errorf("%w: %s", ErrBinary, r.guard.Rel(path))
	}

	return tool.Output{
		Content: string(data),
		Data:    ReadResult{Path: r.guard.Rel(path), Size: int64(len(data))},
	}, nil
}

func (r *Read) check(in tool.Input) (string, error) {
	ri, err := inputAs[tool.ReadInput](in)
	if err != nil {
		return "", err
	}
	path, err := r.guard.Resolve(ri.FilePath, pathguard.ModeRead)
	if err != nil {
		return "", err
	}
	if _, err := r.guard.StatFile(path, r.guard.ReadLimit()); err != nil {
		return "", err
	}
	return path, nil
}
