package openai

import (
	"encoding/json"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/codeclaw/internal/provider"
)

var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

func toMessages(msgs []provider.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toTools(defs []provider.ToolDefinition) []goopenai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if len(params) == 0 {
			params = emptyParameters
		}
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// toChunk converts one streamed response. It reports false when the
// response carries nothing worth forwarding.
func toChunk(resp goopenai.ChatCompletionStreamResponse) (provider.StreamChunk, bool) {
	var chunk provider.StreamChunk
	if resp.Usage != nil {
		chunk.Usage = &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		chunk.Content = choice.Delta.Content
		chunk.Reasoning = choice.Delta.ReasoningContent
		chunk.FinishReason = toFinishReason(choice.FinishReason)
		for i, tc := range choice.Delta.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			chunk.ToolCalls = append(chunk.ToolCalls, provider.ToolCallDelta{
				Index:          index,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			})
		}
	}

	ok := chunk.Content != "" || chunk.Reasoning != "" || len(chunk.ToolCalls) > 0 ||
		chunk.FinishReason != "" || chunk.Usage != nil
	return chunk, ok
}

func toFinishReason(r goopenai.FinishReason) provider.FinishReason {
	switch r {
	case "":
		return ""
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return provider.FinishReasonToolUse
	case goopenai.FinishReasonLength:
		return provider.FinishReasonLength
	case goopenai.FinishReasonContentFilter:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
