package security

import (
	"maps"
	"slices"
	"sync"
)

// CredentialStore holds the secrets the process was configured with, such
// as provider API keys. Values are redacted from logs and audit records and
// scrubbed from subprocess environments. It is safe for concurrent use.
type CredentialStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{values: make(map[string]string)}
}

// Set stores value under name, replacing any previous value. An empty value
// removes the entry.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.values, name)
		return
	}
	s.values[name] = value
}

// Get returns the value stored under name.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the stored names, sorted.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Values returns the distinct stored values, longest first so that a
// secret containing another is replaced whole.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.values))
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return slices.Compact(out)
}
