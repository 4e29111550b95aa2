package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client     *api.Client
	model      string
	embedModel string
}

// NewOllamaProvider connects to host, falling back to OLLAMA_HOST and then the local default.
func NewOllamaProvider(host, model, embedModel string) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}

	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	if host != "" {
		baseURL = host
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", baseURL, err)
	}

	return &OllamaProvider{
		client:     api.NewClient(uri, http.DefaultClient),
		model:      model,
		embedModel: embedModel,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, params Params) (*Response, error) {
	apiMsgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	model := p.model
	if params.Model != "" {
		model = params.Model
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Options: map[string]any{
			"num_predict":       params.MaxTokens,
			"temperature":       params.Temperature,
			"top_p":             params.TopP,
			"frequency_penalty": params.FrequencyPenalty,
			"presence_penalty":  params.PresencePenalty,
		},
	}

	var content string
	var usage Usage
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.EvalCount + resp.PromptEvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	return &Response{Content: content, Usage: usage}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  p.embedModel,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
