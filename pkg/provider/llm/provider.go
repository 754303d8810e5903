// Package llm defines the Provider interface for response-generation backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance) and turns one transcribed request into one reply. Turns are
// independent: no conversation history is carried from one turn to the next,
// so a request normally holds a system prompt and a single user message.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the prompt sent to the model.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction placed before Messages.
	SystemPrompt string

	// Messages is the ordered prompt. The last entry is the user's request.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// uses the provider default.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero uses the provider
	// default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any response-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply. Every
	// failure, including an empty choice list and ctx cancellation, is
	// wrapped with types.ErrCompletion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserRequest builds the request for a single transcribed utterance.
func UserRequest(systemPrompt, text string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []Message{{Role: RoleUser, Content: text}},
	}
}
