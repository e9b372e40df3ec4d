// Package securitytest holds in-memory helpers for tests that exercise
// credentials and auditing.
package securitytest

import (
	"maps"
	"slices"
	"sync"

	"github.com/flemzord/codeclaw/internal/security"
)

// Credentials returns a store holding every entry of kv.
func Credentials(kv map[string]string) *security.CredentialStore {
	store := security.NewCredentialStore()
	for _, name := range slices.Sorted(maps.Keys(kv)) {
		store.Set(name, kv[name])
	}
	return store
}

// AuditRecorder captures audit events instead of writing them.
type AuditRecorder struct {
	Logger *security.AuditLogger

	mu     sync.Mutex
	events []security.AuditEvent
}

// NewAuditRecorder returns a recorder whose Logger feeds Events.
func NewAuditRecorder() *AuditRecorder {
	r := &AuditRecorder{}
	r.Logger = security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: r.record})
	return r
}

func (r *AuditRecorder) record(ev security.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events is a snapshot of everything logged so far.
func (r *AuditRecorder) Events() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types lists the recorded event types in order.
func (r *AuditRecorder) Types() []security.EventType {
	var out []security.EventType
	for _, ev := range r.Events() {
		out = append(out, ev.Type)
	}
	return out
}
