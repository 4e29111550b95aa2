package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGeminiProvider(apiKey, model, embedModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-pro-latest"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &GeminiProvider{
		client:     client,
		model:      model,
		embedModel: embedModel,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// geminiContents splits messages into a system instruction (leading system
// messages), chat history, and the final message to send. Later system
// messages travel as user content since Gemini only knows user and model.
func geminiContents(messages []Message) (system string, history []*genai.Content, last string) {
	i := 0
	var sys []string
	for ; i < len(messages) && messages[i].Role == RoleSystem; i++ {
		sys = append(sys, messages[i].Content)
	}
	rest := messages[i:]
	if len(rest) == 0 {
		return "", nil, strings.Join(sys, "\n\n")
	}
	for _, m := range rest[:len(rest)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, rest[len(rest)-1].Content
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, params Params) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	name := p.model
	if params.Model != "" && strings.HasPrefix(params.Model, "gemini") {
		name = params.Model
	}
	model := p.client.GenerativeModel(name)
	model.SetTemperature(float32(params.Temperature))
	model.SetTopP(float32(params.TopP))
	if params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(params.MaxTokens))
	}

	system, history, last := geminiContents(messages)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			content.WriteString(string(t))
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Response{Content: content.String(), Usage: usage}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.client.EmbeddingModel(p.embedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
