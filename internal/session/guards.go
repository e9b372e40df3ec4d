package session

import (
	"encoding/json"

	"github.com/flemzord/codeclaw/internal/provider"
)

// loopDetector counts identical tool calls within one turn.
type loopDetector struct {
	threshold int
	counts    map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// canonicalArgs re-encodes args so that {"a":1,"b":2} and {"b":2,"a":1}
// count as the same call. Invalid JSON is compared verbatim.
func canonicalArgs(args json.RawMessage) string {
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return string(args)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(out)
}

// record registers a call and reports whether its signature reached the
// threshold.
func (d *loopDetector) record(call provider.ToolCall) bool {
	key := call.Name + ":" + canonicalArgs(call.Arguments)
	d.counts[key]++
	return d.counts[key] >= d.threshold
}

// tokenTracker sums usage over a turn. It is owned by the turn goroutine.
type tokenTracker struct {
	budget int
	usage  provider.Usage
}

func (t *tokenTracker) add(u *provider.Usage) {
	if u == nil {
		return
	}
	t.usage.PromptTokens += u.PromptTokens
	t.usage.CompletionTokens += u.CompletionTokens
	t.usage.TotalTokens += u.TotalTokens
}

// exceeded reports whether the budget is spent. A zero budget never is.
func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}
