// Package llm is the chat-completion boundary used by text analysis.
//
// Analysis sends one system prompt and one user message per story and expects
// a single JSON object back, so the interface is a blocking request/reply
// rather than a stream. Adapters live in subpackages and must be safe for
// concurrent use.
package llm

import "context"

// Provider is a chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities reports static limits of the configured model. Analysis
	// uses them to reject stories that cannot fit.
	Capabilities() ModelCapabilities
}

// CompletionRequest is one chat turn.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message

	// Temperature and MaxTokens use the backend default when zero.
	Temperature float64
	MaxTokens   int

	// JSON requests a single JSON object where the backend can enforce it.
	// The prompt must ask for JSON either way.
	JSON bool
}

// CompletionResponse is the assistant reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Usage is the token accounting reported by the backend, zero when it
// reports none.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
