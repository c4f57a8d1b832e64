package llm

import "context"

// Client is the interface the rest of the system programs against.
// One call type only: an ordered message list plus optional tool
// schemas in, text or tool calls out.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
