// Moonshot (Kimi) Provider implementation using the go-openai library.
//
// Moonshot exposes an OpenAI-compatible Chat Completions API, so the provider
// is built on go-openai with a custom base URL. The streaming protocol is the
// interesting part: reasoning models interleave reasoning_content deltas,
// content deltas, and indexed tool-call deltas within one response, and this
// provider forwards each of them as a StreamEvent fragment without any
// accumulation of its own.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Delta-to-StreamEvent mapping

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// MoonshotProvider implements the Provider interface for Moonshot's
// OpenAI-compatible API. With an empty base URL it talks to OpenAI proper.
type MoonshotProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewMoonshotProvider creates a new Moonshot provider. baseURL may be empty,
// in which case the OpenAI default endpoint is used.
func NewMoonshotProvider(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *MoonshotProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &MoonshotProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *MoonshotProvider) Name() string {
	return "moonshot"
}

// Model returns the current model.
func (p *MoonshotProvider) Model() string {
	return p.model
}

// Chat sends a non-streaming chat completion request.
func (p *MoonshotProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// StreamChat streams a chat completion, forwarding each delta as a StreamEvent.
func (p *MoonshotProvider) StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, events chan<- StreamEvent) (*TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(tools) > 0 {
		req.Tools = convertToOpenAITools(tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("stream recv failed: %w", err)
		}

		// Usage arrives in a trailing chunk with no choices
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		event := StreamEvent{
			Role:             delta.Role,
			ReasoningContent: delta.ReasoningContent,
			Content:          delta.Content,
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			event.ToolCalls = append(event.ToolCalls, ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		if event.Role == "" && event.ReasoningContent == "" && event.Content == "" && len(event.ToolCalls) == 0 {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
}

// convertToOpenAIMessages converts our ChatMessage history to the wire format,
// preserving reasoning traces, tool calls, and tool result attribution.
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:             msg.Role,
			Content:          msg.Content,
			ReasoningContent: msg.ReasoningContent,
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		if msg.Name != "" {
			oaiMsg.Name = msg.Name
		}

		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify MoonshotProvider implements Provider
var _ Provider = (*MoonshotProvider)(nil)
