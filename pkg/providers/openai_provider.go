package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider adapts any OpenAI-compatible chat-completions endpoint
// (OpenAI itself, OpenRouter, or a self-hosted gateway) to LLMProvider.
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
}

// NewOpenAIProvider builds a provider against baseURL (pass "" for the
// public OpenAI endpoint) authenticated with apiKey.
func NewOpenAIProvider(apiKey, baseURL, defaultModel string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if defaultModel == "" {
		defaultModel = openai.ChatModelGPT4o
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), defaultModel: defaultModel}
}

func (p *OpenAIProvider) GetDefaultModel() string {
	return p.defaultModel
}

// Embed computes a single embedding vector for text using model, for
// callers (the migration engine) that need vector output rather than chat
// completions from this same OpenAI-compatible endpoint.
func (p *OpenAIProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai-compatible embeddings API call: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai-compatible embeddings API returned no data")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	params, err := buildOpenAIParams(messages, tools, model, options)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai-compatible API call: %w", err)
	}
	return parseOpenAIResponse(resp), nil
}

func buildOpenAIParams(messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (openai.ChatCompletionNewParams, error) {
	var oaMessages []openai.ChatCompletionMessageParamUnion

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			oaMessages = append(oaMessages, openai.SystemMessage(msg.Content))
		case "user":
			oaMessages = append(oaMessages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				asst := openai.ChatCompletionAssistantMessageParam{}
				if msg.Content != "" {
					asst.Content.OfString = openai.String(msg.Content)
				}
				for _, tc := range msg.ToolCalls {
					name := tc.Name
					argsJSON := ""
					if tc.Function != nil {
						if name == "" {
							name = tc.Function.Name
						}
						argsJSON = tc.Function.Arguments
					}
					if argsJSON == "" {
						if b, err := json.Marshal(tc.Arguments); err == nil {
							argsJSON = string(b)
						}
					}
					asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      name,
							Arguments: argsJSON,
						},
					})
				}
				oaMessages = append(oaMessages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			} else {
				oaMessages = append(oaMessages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			oaMessages = append(oaMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: oaMessages,
	}

	if mt, ok := options["max_tokens"].(int); ok {
		params.MaxTokens = openai.Int(int64(mt))
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = openai.Float(temp)
	}

	if len(tools) > 0 {
		params.Tools = translateToolsForOpenAI(tools)
	}

	return params, nil
}

func translateToolsForOpenAI(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  openai.FunctionParameters(t.Function.Parameters),
		}))
	}
	return result
}

func parseOpenAIResponse(resp *openai.ChatCompletion) *LLMResponse {
	if len(resp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}
	}
	choice := resp.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]interface{}{"raw": tc.Function.Arguments}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			Function:  &FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	finishReason := "stop"
	switch choice.FinishReason {
	case "tool_calls":
		finishReason = "tool_calls"
	case "length":
		finishReason = "length"
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
