package provider

import (
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client     *openai.Client
	model      string
	embedModel openai.EmbeddingModel
}

func NewOpenAIProvider(apiKey, baseURL, model, embedModel string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	if model == "" {
		model = openai.GPT4
	}
	em := openai.AdaEmbeddingV2
	if embedModel != "" {
		em = openai.EmbeddingModel(embedModel)
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		embedModel: em,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// nonzero keeps a zero temperature on the wire; go-openai drops zero floats
// through omitempty.
func nonzero(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, params Params) (*Response, error) {
	reqMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		reqMsgs[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	model := p.model
	if params.Model != "" {
		model = params.Model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            model,
		Messages:         reqMsgs,
		MaxTokens:        params.MaxTokens,
		Temperature:      nonzero(params.Temperature),
		TopP:             float32(params.TopP),
		FrequencyPenalty: float32(params.FrequencyPenalty),
		PresencePenalty:  float32(params.PresencePenalty),
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: p.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
