// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a hosted or local model API (Gemini, OpenAI, Anthropic,
// a local Ollama instance, ...) and exposes a uniform request/response surface
// so the receptionist loop never couples to a specific SDK.
//
// Implementors must be safe for concurrent use: one Provider is constructed per
// process and shared by every browser session.
package llm

import (
	"context"

	"github.com/MrWong99/frontdesk/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is the "user"
	// prompt that drives the response.
	Messages []types.Message

	// SystemPrompt is the fixed instruction injected before the conversation.
	// Providers without a dedicated system field prepend it as a "system"
	// message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full reply for a single request.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage

	// Truncated is set when generation stopped at the token limit rather than
	// at a natural end of the reply.
	Truncated bool
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the configured model.
	Capabilities() types.ModelCapabilities
}
