package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmbeddingsUnsupported is returned by providers without an embedding endpoint.
var ErrEmbeddingsUnsupported = errors.New("embeddings not supported by provider")

type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	if model == "" {
		model = "claude-3-opus-20240229"
	}

	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1/messages",
		client:  &http.Client{},
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Usage      anthropicUsage          `json:"usage"`
	StopReason string                  `json:"stop_reason"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SetBaseURL allows overriding the API endpoint (useful for tests)
func (p *AnthropicProvider) SetBaseURL(url string) {
	p.baseURL = url
}

// anthropicRequestFor folds leading system messages into the system field,
// sends later system messages as user turns, and keeps a trailing assistant
// message as a prefill.
func (p *AnthropicProvider) anthropicRequestFor(messages []Message, params Params) anthropicRequest {
	var system []string
	i := 0
	for ; i < len(messages) && messages[i].Role == RoleSystem; i++ {
		system = append(system, messages[i].Content)
	}

	var msgs []anthropicMessage
	for j, m := range messages[i:] {
		role := m.Role
		content := m.Content
		switch role {
		case RoleSystem:
			role = RoleUser
		case RoleAssistant:
			if i+j == len(messages)-1 {
				// The API rejects prefills ending in whitespace.
				content = strings.TrimRight(content, " \t\n")
			}
		}
		if content == "" {
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: content})
	}

	model := p.model
	if strings.HasPrefix(params.Model, "claude") {
		model = params.Model
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	req := anthropicRequest{
		Model:     model,
		System:    strings.Join(system, "\n\n"),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	temp := params.Temperature
	req.Temperature = &temp
	if params.TopP > 0 && params.TopP < 1 {
		topP := params.TopP
		req.TopP = &topP
	}
	return req
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, params Params) (*Response, error) {
	jsonBody, err := json.Marshal(p.anthropicRequestFor(messages, params))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic api error: %s", string(body))
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if anthropicResp.Error != nil {
		return nil, fmt.Errorf("anthropic error: %s", anthropicResp.Error.Message)
	}

	var content strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content: content.String(),
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
