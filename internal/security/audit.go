package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventApproval    EventType = "approval"
	EventBlocked     EventType = "blocked"
	EventBackup      EventType = "backup"
	EventRateLimit   EventType = "rate_limit"
	EventAuthSuccess EventType = "auth_success"
	EventAuthFailure EventType = "auth_failure"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures NewAuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil keeps events in
	// OnEvent only.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values.
	Redactor *Redactor

	// OnEvent sees every event after redaction.
	OnEvent func(AuditEvent)

	// Now overrides time.Now.
	Now func() time.Time
}

// AuditLogger appends events to the audit trail. Writes are serialized so
// lines never interleave.
type AuditLogger struct {
	cfg      AuditLoggerConfig
	mu       sync.Mutex
	failures atomic.Int64
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{cfg: cfg}
}

// Log stamps, redacts and records ev. The caller's Metadata map is left
// untouched.
func (l *AuditLogger) Log(ev AuditEvent) {
	ev.Timestamp = l.cfg.Now()
	ev.Metadata = maps.Clone(ev.Metadata)
	if r := l.cfg.Redactor; r != nil {
		ev.Detail = r.Redact(ev.Detail)
		for k, v := range ev.Metadata {
			ev.Metadata[k] = r.Redact(v)
		}
	}

	var line []byte
	if l.cfg.Writer != nil {
		b, err := json.Marshal(ev)
		if err != nil {
			l.failures.Add(1)
		}
		line = append(b, '\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(ev)
	}
	if len(line) > 1 {
		if _, err := l.cfg.Writer.Write(line); err != nil {
			l.failures.Add(1)
		}
	}
}

// WriteErrors returns how many events could not be written.
func (l *AuditLogger) WriteErrors() int64 {
	return l.failures.Load()
}
