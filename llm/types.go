// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// ChatMessage represents one turn in the conversation history.
// ReasoningContent carries the internal deliberation trace emitted by
// reasoning-capable models; it must survive round-trips to the API so the
// model can see its own prior reasoning.
type ChatMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"` // Assistant turns from reasoning models
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`        // For assistant messages with tool calls
	ToolCallID       string     `json:"tool_call_id,omitempty"`      // For tool result messages
	Name             string     `json:"name,omitempty"`              // Tool name on tool result messages
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "system",
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "user",
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    "assistant",
		Content: content,
	}
}

// ToolResultMessage creates a tool result message answering the given call.
func ToolResultMessage(callID, toolName, content string) ChatMessage {
	return ChatMessage{
		Role:       "tool",
		ToolCallID: callID,
		Name:       toolName,
		Content:    content,
	}
}

// LLMResponse represents a complete (non-streamed) response from a provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// StreamEvent is one partial update from an in-flight streamed response.
// Any combination of fields may be set; all fields are fragments that the
// caller accumulates in arrival order.
type StreamEvent struct {
	Role             string          // Only meaningful on the first event carrying it
	ReasoningContent string          // Fragment of the reasoning trace
	Content          string          // Fragment of the visible response
	ToolCalls        []ToolCallDelta // Fragments of in-progress tool calls
}

// ToolCallDelta is a fragment of one tool call, routed by slot index.
// ID and Name are set once (first non-empty value wins); Arguments grows
// monotonically and is always appended, never replaced.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
