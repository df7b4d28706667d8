// Package llms wraps the remote chat endpoint used for all model calls.
package llms

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to or received from the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call generation settings. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONFormat  bool
}

// StreamChunk is one unit of streamed model output.
type StreamChunk struct {
	Type   string // "text", "done" or "error"
	Text   string
	Tokens int
	Error  error
}

// Provider is the chat primitive every model call of a turn goes through.
type Provider interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)

	GenerateStreaming(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error)

	ModelName() string
}
