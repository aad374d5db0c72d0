// Package llm defines the Provider interface for the language-model backends
// that classify command intent and generate spoken-answer text.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, or any
// backend reachable through any-llm-go) and exposes a uniform non-streaming
// completion interface. This pipeline is an offline batch editor: answers are
// synthesised whole before splicing, so there is no streaming surface.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is one turn of a completion conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the full response text.
	Content string

	// Usage is the backend's token accounting, when reported.
	Usage Usage
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete produces a single full response for req. Returns a non-nil
	// response on success; an empty-choice or transport failure is an error.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
