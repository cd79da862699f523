// LLMClient - Simple wrapper around providers.

package llm

import (
	"context"
)

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat sends a chat completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	response, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// StreamChat streams a chat completion with the given tool catalog.
func (c *Client) StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, events chan<- StreamEvent) (*TokenUsage, error) {
	return c.provider.StreamChat(ctx, messages, tools, events)
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Model returns the model identifier of the underlying provider.
func (c *Client) Model() string {
	return c.provider.Model()
}
