package llm

import "context"

// Client is the interface the conversation engine depends on. The
// concrete implementation talks to an OpenAI-compatible endpoint, but
// the engine only cares about this request/response shape.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools may be nil for plain completions.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
