package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret found by a Redactor.
const RedactPlaceholder = "[REDACTED]"

// secretPatterns match credentials by shape: provider API keys, forge and
// cloud tokens, and bearer headers.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`(?:ghp|gho|ghs|ghu)_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,}`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`xox[bpas]-[0-9A-Za-z-]{10,}`),
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]{16,}`),
}

// Redactor removes secrets from text. It matches the built-in patterns and
// any literal value it was given. It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	literals []string
}

// NewRedactor returns a Redactor with the built-in patterns and no literals.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// AddLiteral redacts s wherever it appears. Values shorter than four bytes
// are ignored.
func (r *Redactor) AddLiteral(s string) {
	if len(s) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, s)
}

// SyncCredentials replaces the literals with the values of store.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = r.literals[:0]
	for _, v := range values {
		if len(v) >= 4 {
			r.literals = append(r.literals, v)
		}
	}
}

// Redact returns s with every secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	for _, lit := range r.literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	r.mu.RUnlock()

	for _, re := range secretPatterns {
		if re.NumSubexp() > 0 {
			s = re.ReplaceAllString(s, "${1}"+RedactPlaceholder)
			continue
		}
		s = re.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}
