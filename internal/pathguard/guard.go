// Package pathguard resolves tool-supplied paths against the working
// directory and rejects anything that looks like a secret. Every tool that
// touches the filesystem goes through a Guard first.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Default size caps.
const (
	DefaultReadLimit int64 = 1 << 20  // 1 MiB
	DefaultEditLimit int64 = 10 << 20 // 10 MiB
)

// Mode selects which checks Resolve applies.
type Mode int

// Mode values.
const (
	// ModeList resolves and contains the path but skips the secret checks,
	// so a directory holding a key file can still be listed.
	ModeList Mode = iota
	ModeRead
	ModeSearch
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeList:
		return "list"
	case ModeRead:
		return "read"
	case ModeSearch:
		return "search"
	case ModeEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Rules is the sensitive-file configuration. Names are matched as
// case-insensitive substrings of the base name, extensions exactly.
type Rules struct {
	SensitiveNames      []string
	SensitiveExtensions []string
	// EditOnlyExtensions are denied for edits but readable.
	EditOnlyExtensions []string
}

// DefaultRules returns a fresh copy of the built-in sensitive-file rules.
func DefaultRules() Rules {
	return Rules{
		SensitiveNames: []string{
			"passwd",
			"shadow",
			"authorized_keys",
			"id_rsa",
			"id_dsa",
			"id_ecdsa",
			"id_ed25519",
		},
		SensitiveExtensions: []string{".key", ".pem", ".crt", ".p12", ".ppk"},
		EditOnlyExtensions:  []string{".env"},
	}
}

// Guard validates paths relative to a root directory.
type Guard struct {
	root      string
	rules     Rules
	readLimit int64
	editLimit int64
}

// Option customises a Guard.
type Option func(*Guard)

// WithRules replaces the sensitive-file rules.
func WithRules(r Rules) Option {
	return func(g *Guard) { g.rules = r }
}

// WithLimits overrides the read and edit size caps. Non-positive values keep
// the defaults.
func WithLimits(read, edit int64) Option {
	return func(g *Guard) {
		if read > 0 {
			g.readLimit = read
		}
		if edit > 0 {
			g.editLimit = edit
		}
	}
}

// New creates a Guard rooted at root. An empty root means the process
// working directory.
func New(root string, opts ...Option) (*Guard, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("pathguard: working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pathguard: root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	g := &Guard{
		root:      abs,
		rules:     DefaultRules(),
		readLimit: DefaultReadLimit,
		editLimit: DefaultEditLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Root returns the absolute root directory.
func (g *Guard) Root() string { return g.root }

// ReadLimit returns the read size cap in bytes.
func (g *Guard) ReadLimit() int64 { return g.readLimit }

// EditLimit returns the edit size cap in bytes.
func (g *Guard) EditLimit() int64 { return g.editLimit }

// Resolve turns raw into an absolute path under the root. It fails with
// ErrAccessDenied when the path escapes the root or, outside ModeList, when
// its name matches the sensitive-file rules.
func (g *Guard) Resolve(raw string, mode Mode) (string, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "."
	}

	p := raw
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	p = filepath.Clean(p)

	// Follow symlinks for the part of the path that exists so a link
	// inside the root cannot point outside it.
	if resolved, err := evalExisting(p); err == nil {
		p = resolved
	}

	if !within(g.root, p) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrAccessDenied, raw, g.root)
	}

	if mode != ModeList {
		if err := g.checkSensitive(p, mode); err != nil {
			return "", fmt.Errorf("%w: %s", err, raw)
		}
	}
	return p, nil
}

// Rel returns p relative to the root, for display.
func (g *Guard) Rel(p string) string {
	rel, err := filepath.Rel(g.root, p)
	if err != nil {
		return p
	}
	return rel
}

// StatFile checks that path is an existing regular file no larger than
// limit bytes. A non-positive limit disables the size check.
func (g *Guard) StatFile(path string, limit int64) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, g.Rel(path))
		}
		return nil, fmt.Errorf("pathguard: stat %s: %w", g.Rel(path), err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, g.Rel(path))
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w: %d bytes > %d bytes", ErrTooLarge, info.Size(), limit)
	}
	return info, nil
}

func (g *Guard) checkSensitive(p string, mode Mode) error {
	name := strings.ToLower(filepath.Base(p))
	ext := strings.ToLower(filepath.Ext(name))

	for _, s := range g.rules.SensitiveNames {
		if strings.Contains(name, strings.ToLower(s)) {
			return fmt.Errorf("%w: potentially sensitive file", ErrAccessDenied)
		}
	}
	if slices.Contains(g.rules.SensitiveExtensions, ext) {
		return fmt.Errorf("%w: potentially sensitive file", ErrAccessDenied)
	}
	if mode == ModeEdit && slices.Contains(g.rules.EditOnlyExtensions, ext) {
		return fmt.Errorf("%w: cannot edit potentially sensitive file", ErrAccessDenied)
	}
	return nil
}

// evalExisting evaluates symlinks on the longest existing prefix of p and
// re-attaches the missing tail.
func evalExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			slices.Reverse(tail)
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
