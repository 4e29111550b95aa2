package provider

import (
	"context"
)

// Roles used in prompt assemblies.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Params carries the per-call tuning values for a completion.
type Params struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completer turns an ordered list of role-tagged messages into response text.
type Completer interface {
	// Chat sends a list of messages to the model and returns a response.
	Chat(ctx context.Context, messages []Message, params Params) (*Response, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is a backend offering both completions and embeddings.
type Provider interface {
	Completer
	Embedder
}
