package security

import (
	"sync"
	"time"
)

// Limit names a rate-limited action.
type Limit string

// Limited actions.
const (
	LimitMessage  Limit = "message"
	LimitToolCall Limit = "tool_call"
)

// RateLimitConfig sets the limits. Zero fields take the defaults.
type RateLimitConfig struct {
	MaxSessions     int `yaml:"max_sessions"`
	MessagesPerMin  int `yaml:"messages_per_min"`
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
}

func (c *RateLimitConfig) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 64
	}
	if c.MessagesPerMin <= 0 {
		c.MessagesPerMin = 120
	}
	if c.ToolCallsPerMin <= 0 {
		c.ToolCallsPerMin = 300
	}
}

// RateLimiter enforces per-action limits over a sliding one-minute window.
// It is safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	windows map[Limit]*window
	now     func() time.Time
}

// window keeps the timestamps of recent events, oldest first.
type window struct {
	limit  int
	events []time.Time
}

// NewRateLimiter creates a limiter for cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		cfg: cfg,
		windows: map[Limit]*window{
			LimitMessage:  {limit: cfg.MessagesPerMin},
			LimitToolCall: {limit: cfg.ToolCallsPerMin},
		},
		now: time.Now,
	}
}

// Allow records one event of kind, or returns ErrRateLimited without
// recording it when the window is full. Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind Limit) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[kind]
	if !ok {
		return nil
	}
	now := rl.now()
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]

	if len(w.events) >= w.limit {
		return ErrRateLimited
	}
	w.events = append(w.events, now)
	return nil
}

// MaxSessions returns the configured session cap.
func (rl *RateLimiter) MaxSessions() int { return rl.cfg.MaxSessions }
