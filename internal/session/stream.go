package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// pendingCall accumulates one streamed tool call. It is announced to the
// transcript once its name is known.
type pendingCall struct {
	id        string
	name      string
	args      strings.Builder
	announced bool
}

// stepResult is what one model round-trip produced.
type stepResult struct {
	content strings.Builder
	calls   []*pendingCall
	usage   *provider.Usage
}

// toolCalls returns the announced calls in the order the model made them.
func (r *stepResult) toolCalls() []provider.ToolCall {
	out := make([]provider.ToolCall, 0, len(r.calls))
	for _, pc := range r.calls {
		args := pc.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out = append(out, provider.ToolCall{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(args)})
	}
	return out
}

// stream consumes one completion stream, emitting text, reasoning and
// tool-call argument deltas into message msgID as they arrive.
func (s *Session) stream(ctx context.Context, msgID string, req provider.CompletionRequest) (*stepResult, error) {
	res := &stepResult{}

	ch, err := s.provider.Stream(ctx, req)
	if err != nil {
		return res, err
	}

	byIndex := make(map[int]*pendingCall)
	var all []*pendingCall
	var streamErr error

	for chunk := range ch {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Usage != nil {
			res.usage = chunk.Usage
		}
		if chunk.Reasoning != "" {
			if err := s.emit(ctx, transcript.ReasoningDelta(msgID, chunk.Reasoning)); err != nil {
				streamErr = err
				break
			}
		}
		if chunk.Content != "" {
			res.content.WriteString(chunk.Content)
			if err := s.emit(ctx, transcript.TextDelta(msgID, chunk.Content)); err != nil {
				streamErr = err
				break
			}
		}
		for _, d := range chunk.ToolCalls {
			pc, ok := byIndex[d.Index]
			if !ok {
				pc = &pendingCall{}
				byIndex[d.Index] = pc
				all = append(all, pc)
			}
			if err := s.applyDelta(ctx, msgID, pc, d); err != nil {
				streamErr = err
				break
			}
		}
		if streamErr != nil {
			break
		}
	}

	if streamErr != nil {
		// Drain remaining chunks to prevent a provider goroutine leak.
		for range ch { //nolint:revive // intentional empty drain loop
		}
	}

	for _, pc := range all {
		if pc.announced {
			res.calls = append(res.calls, pc)
			continue
		}
		s.logger.Warn("dropping tool call without name", "arguments", pc.args.String())
	}

	if streamErr == nil {
		if err := ctx.Err(); err != nil {
			streamErr = err
		}
	}
	return res, streamErr
}

func (s *Session) applyDelta(ctx context.Context, msgID string, pc *pendingCall, d provider.ToolCallDelta) error {
	if pc.id == "" {
		pc.id = d.ID
	}
	if pc.name == "" {
		pc.name = d.Name
	}
	pc.args.WriteString(d.ArgumentsDelta)

	if pc.announced {
		if d.ArgumentsDelta == "" {
			return nil
		}
		return s.emit(ctx, transcript.ToolCallDelta(msgID, pc.id, tool.Name(pc.name), d.ArgumentsDelta))
	}
	if pc.name == "" {
		return nil
	}

	// Call ids must be unique across the session; some servers restart
	// their numbering every response.
	if _, seen := s.callIDs[pc.id]; pc.id == "" || seen {
		pc.id = s.newID()
	}
	s.callIDs[pc.id] = struct{}{}
	pc.announced = true
	return s.emit(ctx, transcript.ToolCallDelta(msgID, pc.id, tool.Name(pc.name), pc.args.String()))
}
