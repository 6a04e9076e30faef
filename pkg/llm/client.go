package llm

import "context"

// StreamFunc receives one chunk of a streaming completion. Returning an
// error aborts the stream; the provider client stops reading and returns
// that error from Stream.
type StreamFunc func(chunk StreamChunk) error

// Client is the provider-agnostic model interface. Implementations live in
// pkg/llm/provider and translate to each backend's wire format.
type Client interface {
	// Name returns the canonical provider name (e.g., "anthropic", "openai",
	// "ollama").
	Name() string

	// Complete performs a blocking chat completion.
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream performs a streaming chat completion, invoking fn once per
	// chunk. The final chunk has Done set. Partial output already delivered
	// through fn remains valid when Stream returns an error.
	Stream(ctx context.Context, req *ChatRequest, fn StreamFunc) error

	// AvailableModels lists model names the backend advertises. Providers
	// without a listing endpoint return their configured default.
	AvailableModels(ctx context.Context) ([]string, error)
}
