package builtin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/tool"
)

func TestRead_Content(t *testing.T) {
	t.Parallel()

	g := newGuard(t)
	const text = "line one\nline two\n\ttabbed\n"
	writeFile(t, g, "notes.txt", text)

	r := NewRead(g)
	a, err := r.Assess(context.Background(), tool.ReadInput{FilePath: "notes.txt"})
	if err != nil || a.Requirement != tool.Allow {
		t.Fatalf("Assess = %+v, %v; want allow", a, err)
	}
	out, err := r.Execute(context.Background(), tool.ReadInput{FilePath: "notes.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Content != text {
		t.Errorf("content = %q, want %q", out.Content, text)
	}
	if res := out.Data.(ReadResult); res.Size != int64(len(text)) {
		t.Errorf("size = %d, want %d", res.Size, len(text))
	}
}

func TestRead_EnvFileIsReadable(t *testing.T) {
	t.Parallel()

	g := newGuard(t)
	writeFile(t, g, ".env", "KEY=1\n")

	if _, err := NewRead(g).Execute(context.Background(), tool.ReadInput{FilePath: ".env"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []pathguard.Option
		file    string
		content string
		path    string
		want    error
	}{
		{"private key", nil, "id_rsa", "secret", "id_rsa", pathguard.ErrAccessDenied},
		{"pem", nil, "secrets.pem", "secret", "secrets.pem", pathguard.ErrAccessDenied},
		{"nested key", nil, "keys/server.key", "secret", "keys/server.key", pathguard.ErrAccessDenied},
		{"outside root", nil, "", "", "../outside.txt", pathguard.ErrAccessDenied},
		{"missing", nil, "", "", "missing.txt", pathguard.ErrNotFound},
		{"too large", []pathguard.Option{pathguard.WithLimits(4, 0)}, "big.txt", "0123456789", "big.txt", pathguard.ErrTooLarge},
		{"binary", nil, "blob.bin", "\xff\xfe\x00\x01", "blob.bin", ErrBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newGuard(t, tt.opts...)
			if tt.file != "" {
				writeFile(t, g, tt.file, tt.content)
			}

			r := NewRead(g)
			_, err := r.Execute(context.Background(), tool.ReadInput{FilePath: tt.path})
			if !errors.Is(err, tt.want) {
				t.Errorf("Execute error = %v, want %v", err, tt.want)
			}
			if tt.want == ErrBinary {
				return
			}
			if _, err := r.Assess(context.Background(), tool.ReadInput{FilePath: tt.path}); !errors.Is(err, tt.want) {
				t.Errorf("Assess error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRead_Directory(t *testing.T) {
	t.Parallel()

	g := newGuard(t)
	if err := os.Mkdir(filepath.Join(g.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := NewRead(g).Execute(context.Background(), tool.ReadInput{FilePath: "sub"})
	if !errors.Is(err, pathguard.ErrNotAFile) {
		t.Errorf("error = %v, want ErrNotAFile", err)
	}
}

func TestRead_SymlinkOutsideRoot(t *testing.T) {
	t.Parallel()

	outside := filepath.Join(t.TempDir(), "target.txt")
	if err := os.WriteFile(outside, []byte("outside"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := newGuard(t)
	if err := os.Symlink(outside, filepath.Join(g.Root(), "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := NewRead(g).Execute(context.Background(), tool.ReadInput{FilePath: "link.txt"})
	if !errors.Is(err, pathguard.ErrAccessDenied) {
		t.Errorf("error = %v, want ErrAccessDenied", err)
	}
}
