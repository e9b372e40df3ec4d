package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/flemzord/codeclaw/internal/pathguard"
	"github.com/flemzord/codeclaw/internal/tool"
)

// textExtensions are searched when scanning the working directory. Files
// without an extension are searched too.
var textExtensions = []string{
	".txt", ".md", ".json", ".yml", ".yaml", ".toml", ".xml", ".html", ".css",
	".go", ".mod", ".js", ".ts", ".tsx", ".jsx", ".py", ".rb", ".rs", ".java",
	".c", ".h", ".cpp", ".sh", ".sql",
}

// Match is one matching line.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchResult is the structured payload of the search tool.
type SearchResult struct {
	Pattern string  `json:"pattern"`
	Matches []Match `json:"matches"`
}

// Search finds lines matching a regular expression.
type Search struct {
	guard *pathguard.Guard
}

// NewSearch creates the search tool.
func NewSearch(guard *pathguard.Guard) *Search {
	return &Search{guard: guard}
}

func (*Search) Name() tool.Name         { return tool.Search }
func (*Search) Description() string     { return "Search for patterns in files" }
func (*Search) Scopes() []tool.Scope    { return []tool.Scope{tool.ScopeReadOnly} }
func (*Search) Schema() json.RawMessage { return searchSchema }

var searchSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "pattern": {"type": "string", "description": "Regular expression to search for"},
    "filePath": {"type": "string", "description": "Specific file to search in (default: search current directory)"}
  },
  "required": ["pattern"]
}`)

// Assess implements tool.Tool.
func (s *Search) Assess(ctx context.Context, in tool.Input) (tool.Assessment, error) {
	return allowAfter(ctx, func() error {
		si, err := inputAs[tool.SearchInput](in)
		if err != nil {
			return err
		}
		if _, err := compilePattern(si.Pattern); err != nil {
			return err
		}
		if si.FilePath != "" {
			_, err = s.resolveFile(si.FilePath)
		}
		return err
	})
}

// Execute implements tool.Tool.
func (s *Search) Execute(ctx context.Context, in tool.Input) (tool.Output, error) {
	si, err := inputAs[tool.SearchInput](in)
	if err != nil {
		return tool.Output{}, err
	}
	re, err := compilePattern(si.Pattern)
	if err != nil {
		return tool.Output{}, err
	}

	result := SearchResult{Pattern: si.Pattern}
	var content string

	if si.FilePath != "" {
		path, err := s.resolveFile(si.FilePath)
		if err != nil {
			return tool.Output{}, err
		}
		matches, err := searchFile(path, s.guard.Rel(path), re)
		if err != nil {
			return tool.Output{}, fmt.Errorf("search %s: %w", si.FilePath, err)
		}
		result.Matches = matches
		content = joinLines(matches)
	} else {
		blocks, matches, err := s.searchRoot(ctx, re)
		if err != nil {
			return tool.Output{}, err
		}
		result.Matches = matches
		content = strings.Join(blocks, "\n\n")
	}

	if len(result.Matches) == 0 {
		content = "No matches found for pattern: " + si.Pattern
	}
	return tool.Output{Content: content, Data: result}, nil
}

func (s *Search) resolveFile(raw string) (string, error) {
	path, err := s.guard.Resolve(raw, pathguard.ModeSearch)
	if err != nil {
		return "", err
	}
	if _, err := s.guard.StatFile(path, s.guard.ReadLimit()); err != nil {
		return "", err
	}
	return path, nil
}

// searchRoot scans the regular files directly inside the root. Hidden,
// ignored, sensitive, oversized, binary and unreadable files are skipped.
func (s *Search) searchRoot(ctx context.Context, re *regexp.Regexp) ([]string, []Match, error) {
	root := s.guard.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}
	ignore := loadGitignore(root)

	var (
		blocks  []string
		matches []Match
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		name := e.Name()
		if strings.HasPrefix(name, ".") || e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != "" && !slices.Contains(textExtensions, ext) {
			continue
		}
		if ignore != nil && ignore.Match([]string{name}, false) {
			continue
		}

		path, err := s.resolveFile(name)
		if err != nil {
			continue
		}
		found, err := searchFile(path, name, re)
		if err != nil || len(found) == 0 {
			continue
		}
		matches = append(matches, found...)
		blocks = append(blocks, name+":\n"+joinLines(found))
	}
	return blocks, matches, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return re, nil
}

func searchFile(path, display string, re *regexp.Regexp) ([]Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, ErrBinary
	}

	var matches []Match
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for n := 1; sc.Scan(); n++ {
		if line := sc.Text(); re.MatchString(line) {
			matches = append(matches, Match{Path: display, Line: n, Text: line})
		}
	}
	return matches, sc.Err()
}

func joinLines(matches []Match) string {
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = m.Text
	}
	return strings.Join(lines, "\n")
}

// loadGitignore parses the root .gitignore. It returns nil when there is
// none.
func loadGitignore(root string) gitignore.Matcher {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}
