package provider

import "encoding/json"

// MessageRole is the author of a Message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// FinishReason is why a stream ended.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering"
)

// Message is one entry of the history sent with a request. An assistant
// message may carry ToolCalls; the matching tool messages set ToolID.
type Message struct {
	Role      MessageRole
	Content   string
	ToolCalls []ToolCall
	ToolID    string
}

// ToolCall is a fully assembled call the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolCallDelta is a streamed fragment of a call. Fragments sharing Index
// belong together; the first one carries ID and Name.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// ToolDefinition advertises a tool and its JSON Schema parameters.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// CompletionRequest is what Provider.Stream sends.
type CompletionRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

// StreamChunk is one increment of a response. Err reports a failure after
// the stream opened.
type StreamChunk struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCallDelta
	FinishReason FinishReason
	Usage        *Usage
	Err          error
}

// Usage is the token accounting reported at the end of a stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
