package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProvider(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "hello", "role": "assistant"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", server.URL, "gpt-4", "")
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Expected 'openai', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		Params{Model: "gpt-3.5-turbo", MaxTokens: 77, TopP: 1})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Expected 'hello', got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if got["model"] != "gpt-3.5-turbo" {
		t.Errorf("Expected per-call model override, got %v", got["model"])
	}
	if got["max_tokens"] != float64(77) {
		t.Errorf("Expected max_tokens 77, got %v", got["max_tokens"])
	}
	if _, ok := got["temperature"]; !ok {
		t.Error("Expected a zero temperature to still be sent")
	}
}

func TestOpenAIProvider_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"embedding": [0.5, 0.25], "index": 0}]}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("test-key", server.URL, "", "")
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOpenAIProvider_Init(t *testing.T) {
	if _, err := NewOpenAIProvider("", "", "", ""); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestOllamaProvider(t *testing.T) {
	var opts map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			var req struct {
				Options map[string]any `json:"options"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			opts = req.Options
			w.Write([]byte(`{"message": {"content": "hi from ollama"}, "done": true, "eval_count": 10, "prompt_eval_count": 5}`))
		case "/api/embeddings":
			w.Write([]byte(`{"embedding": [1, 2, 3]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL, "llama3", "")
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Expected 'ollama', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Params{MaxTokens: 64, Temperature: 0.2})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hi from ollama" {
		t.Errorf("Expected 'hi from ollama', got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if opts["num_predict"] != float64(64) {
		t.Errorf("Expected num_predict 64, got %v", opts["num_predict"])
	}

	vec, err := p.Embed(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 3 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestAnthropicProvider(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_123",
			"content": [{"type": "text", "text": "hello from claude"}],
			"usage": {"input_tokens": 5, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("test-key", "claude-3")
	p.SetBaseURL(server.URL)
	if p.Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got '%s'", p.Name())
	}

	msgs := []Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleSystem, Content: "memories"},
		{Role: RoleUser, Content: "USER at now: hi"},
		{Role: RoleSystem, Content: "tool result"},
		{Role: RoleAssistant, Content: "ASSISTANT at now: "},
	}
	resp, err := p.Chat(context.Background(), msgs, Params{MaxTokens: 100})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hello from claude" {
		t.Errorf("Expected 'hello from claude', got '%s'", resp.Content)
	}
	if got.System != "be helpful\n\nmemories" {
		t.Errorf("unexpected system field %q", got.System)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].Role != RoleUser {
		t.Errorf("mid-conversation system message should be sent as user, got %s", got.Messages[1].Role)
	}
	if got.Messages[2].Content != "ASSISTANT at now:" {
		t.Errorf("prefill should be right-trimmed, got %q", got.Messages[2].Content)
	}
	if got.MaxTokens != 100 {
		t.Errorf("expected max_tokens 100, got %d", got.MaxTokens)
	}
}

func TestAnthropicProvider_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit", "message": "slow down"}}`))
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("test-key", "")
	p.SetBaseURL(server.URL)
	if _, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Params{}); err == nil {
		t.Error("Expected error on non-200 response")
	}
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, ErrEmbeddingsUnsupported) {
		t.Errorf("Expected ErrEmbeddingsUnsupported, got %v", err)
	}
}

func TestGeminiContents(t *testing.T) {
	system, history, last := geminiContents([]Message{
		{Role: RoleSystem, Content: "preamble"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	})
	if system != "preamble" {
		t.Errorf("unexpected system %q", system)
	}
	if len(history) != 2 || history[1].Role != "model" {
		t.Errorf("unexpected history %+v", history)
	}
	if last != "again" {
		t.Errorf("unexpected last %q", last)
	}
}

func TestGeminiProvider_Name(t *testing.T) {
	p, err := NewGeminiProvider("fake-key", "gemini-pro", "")
	if err != nil {
		t.Logf("Skipping Gemini Name test due to client init error: %v", err)
		return
	}
	defer p.Close()
	if p.Name() != "gemini" {
		t.Errorf("Expected 'gemini', got '%s'", p.Name())
	}
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider("first", "second")
	if p.Name() != "stub" {
		t.Errorf("Expected 'stub', got '%s'", p.Name())
	}
	for _, want := range []string{"first", "second", "Understood."} {
		resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Params{})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != want {
			t.Errorf("Expected %q, got %q", want, resp.Content)
		}
	}
	if p.ChatCount() != 3 {
		t.Errorf("Expected 3 recorded calls, got %d", p.ChatCount())
	}
}

func TestStubProvider_Canceled(t *testing.T) {
	p := NewStubProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Chat(ctx, nil, Params{}); err == nil {
		t.Error("Expected error on canceled context")
	}
}

func TestStubProvider_EmbedDeterministic(t *testing.T) {
	p := NewStubProvider()
	a, _ := p.Embed(context.Background(), "weather today")
	b, _ := p.Embed(context.Background(), "weather today")
	if len(a) != len(b) {
		t.Fatal("dimension mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
	if p.EmbedCount() != 2 {
		t.Errorf("Expected 2 embeds, got %d", p.EmbedCount())
	}
}
