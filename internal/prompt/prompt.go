// Package prompt loads the alignment preamble and assembles the ordered
// messages sent to the completion engine each turn.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
)

// ValidationResult represents the outcome of a preamble lint pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// LoadPreamble reads the ordered seed messages from a file (JSON or YAML).
func LoadPreamble(path string) ([]provider.Message, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read preamble file: %w", err)
	}

	var msgs []provider.Message
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON preamble: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML preamble: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported preamble format: %s (use .json or .yaml)", ext)
	}

	if res := Validate(msgs); !res.Valid {
		return nil, fmt.Errorf("invalid preamble %s: %s", path, strings.Join(res.Errors, "; "))
	}
	return msgs, nil
}

// Validate checks roles and content of preamble messages.
func Validate(msgs []provider.Message) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	if len(msgs) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, "preamble has no messages")
	}
	for i, m := range msgs {
		switch m.Role {
		case provider.RoleSystem, provider.RoleUser, provider.RoleAssistant:
		default:
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
		if strings.TrimSpace(m.Content) == "" {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("message %d is empty", i))
		}
	}
	if len(msgs) > 0 && msgs[0].Role != provider.RoleSystem {
		res.Warnings = append(res.Warnings, "preamble does not start with a system message")
	}
	if !strings.Contains(joined(msgs), command.Open) {
		res.Warnings = append(res.Warnings, "preamble never shows the command protocol; tools will go unused")
	}
	return res
}

func joined(msgs []provider.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
	}
	return b.String()
}

// DefaultPreamble describes the assistant and every registered command.
func DefaultPreamble(specs []command.Spec) []provider.Message {
	var b strings.Builder
	b.WriteString("You are a helpful assistant with a long-term memory of past conversations. ")
	b.WriteString("Each message is prefixed with its speaker and timestamp.\n\n")
	b.WriteString("You can use a tool by replying with a command instead of prose. A command starts with ")
	b.WriteString(command.Open + "TAG" + command.Close)
	b.WriteString(" followed by key" + command.Open + "value" + command.Close + " pairs. ")
	b.WriteString("Use at most one command per reply. After the tool runs you will see its result and can answer the user.\n\nAvailable commands:\n")
	for _, s := range specs {
		b.WriteString("- ")
		b.WriteString(s.Usage())
		if s.Description != "" {
			b.WriteString("  ")
			b.WriteString(s.Description)
		}
		b.WriteString("\n")
	}
	return []provider.Message{{Role: provider.RoleSystem, Content: b.String()}}
}

// Assembly is the ordered prompt for one completion call. It is rebuilt
// every turn and never mutates the transcript it was given.
type Assembly struct {
	Preamble   []provider.Message
	Memory     []provider.Message
	Transcript []provider.Message
	ToolResult *provider.Message
	Priming    provider.Message
}

// Messages flattens the assembly in order.
func (a Assembly) Messages() []provider.Message {
	n := len(a.Preamble) + len(a.Memory) + len(a.Transcript) + 2
	out := make([]provider.Message, 0, n)
	out = append(out, a.Preamble...)
	out = append(out, a.Memory...)
	out = append(out, a.Transcript...)
	if a.ToolResult != nil {
		out = append(out, *a.ToolResult)
	}
	out = append(out, a.Priming)
	return out
}

// Priming is the assistant stub that leads the model to answer without
// writing its own speaker header.
func Priming(at time.Time) provider.Message {
	return provider.Message{
		Role:    provider.RoleAssistant,
		Content: session.DisplayText(provider.RoleAssistant, "", at),
	}
}

var echoHeader = regexp.MustCompile(`^\s*(?:USER|ASSISTANT|SYSTEM) at \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?:\s*`)

// StripEcho removes speaker/timestamp headers the model repeated at the start
// of its reply.
func StripEcho(text string) string {
	for {
		loc := echoHeader.FindStringIndex(text)
		if loc == nil {
			return strings.TrimSpace(text)
		}
		text = text[loc[1]:]
	}
}
