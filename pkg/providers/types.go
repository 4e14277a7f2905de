// Package providers defines the wire-neutral chat-completion shapes the
// rest of the runtime speaks, plus one adapter per upstream API. Nothing
// outside this package ever imports an upstream SDK type directly.
package providers

import "context"

// FunctionCall is the OpenAI-style {name, arguments-as-JSON-string} view of
// a tool call, kept alongside the already-decoded Arguments map so either
// representation is available to callers without re-marshaling.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Function  *FunctionCall          `json:"function,omitempty"`
}

// FunctionDef describes a callable tool in JSON-Schema terms.
type FunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolDefinition is one entry of the tool list offered to a model. The
// ReAct loop (pkg/agent) and the router's intent pre-pass both call Chat
// with a nil tool list — ToolDefinition exists for providers/tests that
// still exercise native function calling.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// Message is one turn of a chat transcript.
type Message struct {
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	ToolCallID   string                 `json:"toolCallId,omitempty"`
	ToolCalls    []ToolCall             `json:"toolCalls,omitempty"`
	ContentParts interface{}            `json:"contentParts,omitempty"`
	Name         string                 `json:"name,omitempty"`
}

// UsageInfo reports token accounting for one completion.
type UsageInfo struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// LLMResponse is the normalized result of one Chat call.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

// StreamCallback is invoked with incremental content as it arrives.
type StreamCallback func(delta string)

// LLMProvider is implemented by every upstream adapter.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}

// StreamingProvider is implemented by adapters that can stream content
// deltas. The gateway does not use it; it always calls plain Chat.
type StreamingProvider interface {
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error)
}
