package provider

import (
	"context"
	"math"
	"strings"
	"sync"
	"unicode"
)

// StubProvider is a scripted provider for tests and offline runs. Chat returns
// Responses in order, then Fallback. Embed produces a deterministic
// letter-frequency vector so similar texts land near each other.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	Fallback  string
	ChatErr   error
	EmbedErr  error

	Calls  [][]Message
	Params []Params
	Embeds []string
}

func NewStubProvider(replies ...string) *StubProvider {
	s := &StubProvider{Fallback: "Understood."}
	for _, r := range replies {
		s.Responses = append(s.Responses, Response{Content: r})
	}
	return s
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, params Params) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]Message(nil), messages...))
	m.Params = append(m.Params, params)
	if m.ChatErr != nil {
		return nil, m.ChatErr
	}

	if len(m.Responses) == 0 {
		return &Response{Content: m.Fallback}, nil
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Embeds = append(m.Embeds, text)
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return letterVector(text), nil
}

// ChatCount returns the number of Chat calls seen so far.
func (m *StubProvider) ChatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// EmbedCount returns the number of Embed calls seen so far.
func (m *StubProvider) EmbedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Embeds)
}

func (m *StubProvider) Name() string {
	return "stub"
}

func letterVector(text string) []float32 {
	vec := make([]float32, 27)
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			vec[r-'a']++
		case unicode.IsDigit(r):
			vec[26]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
