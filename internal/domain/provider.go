package domain

import "context"

// ModelProvider is the interface for any model backend.
type ModelProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai").
	Name() string
}

// StreamDelta is a single incremental fragment from a streaming model
// response. Content fragments and tool-call fragments may interleave.
type StreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

// StreamingModelProvider extends ModelProvider with streaming support.
type StreamingModelProvider interface {
	ModelProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
