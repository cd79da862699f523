// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Mapping of the provider's streaming protocol onto StreamEvent

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for chat completions.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a non-streaming chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// StreamChat streams a chat completion with the given tool catalog,
	// sending partial-update events to the provided channel. The channel is
	// not closed by the provider; the caller owns its lifecycle. Returns
	// token usage when the provider reports it in the final chunk.
	StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, events chan<- StreamEvent) (*TokenUsage, error)
}
