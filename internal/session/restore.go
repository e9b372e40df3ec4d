package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flemzord/codeclaw/internal/provider"
	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// interruptedText is recorded on calls a previous process left unfinished.
const interruptedText = "interrupted: session restarted"

// Restore loads the session's stored events, settles whatever a previous
// process left open, and rebuilds the model history. Approvals are not
// re-armed: a call that was waiting for one ends in output-error.
func (s *Session) Restore(ctx context.Context) error {
	s.turn.Lock()
	defer s.turn.Unlock()

	events, err := s.events.Events(ctx, s.id, s.reducer.LastSeq())
	if err != nil {
		return fmt.Errorf("session: load events: %w", err)
	}
	for _, ev := range events {
		if err := s.reducer.Apply(ev); err != nil {
			return fmt.Errorf("session: restore: %w", err)
		}
	}

	for _, m := range s.reducer.Snapshot().Messages {
		for _, p := range m.Parts {
			if p.Tool == nil {
				continue
			}
			s.callIDs[p.Tool.CallID] = struct{}{}
			if !p.Tool.State.Terminal() {
				if err := s.settle(ctx, *p.Tool); err != nil {
					return err
				}
			}
		}
		if !m.Done {
			if err := s.emit(ctx, transcript.MessageEnd(m.ID)); err != nil {
				return err
			}
		}
	}

	s.history = historyFrom(s.reducer.Snapshot())
	if len(events) > 0 {
		s.logger.Info("session restored", "events", len(events), "messages", len(s.history))
	}
	return nil
}

// settle moves an unfinished call to its terminal state.
func (s *Session) settle(ctx context.Context, tc transcript.ToolCall) error {
	call := tool.Call{ID: tc.CallID, Name: tc.ToolName, State: tc.State}
	if tc.State == tool.StateRejected {
		out := tool.CancelledOutput(tc.ToolName, interruptedText)
		call.Output = &out
		call.State = tool.StateOutputAvailable
	} else {
		call.ErrorText = interruptedText
		call.State = tool.StateOutputError
	}
	return s.emit(ctx, transcript.StateChange(call))
}

// historyFrom rebuilds the provider messages of a transcript. Reasoning is
// not replayed.
func historyFrom(t transcript.Transcript) []provider.Message {
	var out []provider.Message
	for _, m := range t.Messages {
		if m.Role == transcript.RoleUser {
			out = append(out, provider.Message{Role: provider.MessageRoleUser, Content: m.Text()})
			continue
		}

		msg := provider.Message{Role: provider.MessageRoleAssistant, Content: m.Text()}
		var results []provider.Message
		for _, p := range m.Parts {
			if p.Tool == nil {
				continue
			}
			args := p.Tool.Args
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{
				ID:        p.Tool.CallID,
				Name:      string(p.Tool.ToolName),
				Arguments: json.RawMessage(args),
			})
			results = append(results, toolResult(p.Tool.CallID, resultText(p.Tool)))
		}
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		out = append(out, msg)
		out = append(out, results...)
	}
	return out
}

func resultText(tc *transcript.ToolCall) string {
	if tc.Output != nil {
		return tc.Output.Content
	}
	return "Error: " + tc.ErrorText
}
