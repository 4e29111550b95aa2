package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSilentUI_ImplementsInterface(t *testing.T) {
	var _ UI = SilentUI{}
	var _ UI = &SilentUI{}
	var _ UI = &Console{}
	var _ Confirmer = &Console{}
}

func TestConsole_ReadLine(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("hello\nworld\n"), &out, false, false)

	for _, want := range []string{"hello", "world"} {
		got, err := c.ReadLine("> ")
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if _, err := c.ReadLine("> "); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
	if strings.Count(out.String(), "> ") != 3 {
		t.Errorf("prompt not printed each time: %q", out.String())
	}
}

func TestConsole_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		c := NewConsole(strings.NewReader(tt.input), io.Discard, false, false)
		got, err := c.Confirm(context.Background(), "Send?")
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConsole_ReplyAndReport(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out, false, false)
	c.Reply("It is sunny.")
	c.Report("external", errors.New("search failed"))
	c.UpdateStatus("thinking")

	s := out.String()
	if !strings.Contains(s, "It is sunny.") {
		t.Errorf("reply missing: %q", s)
	}
	if !strings.Contains(s, "external error: search failed") {
		t.Errorf("report missing: %q", s)
	}
	if strings.Contains(s, "thinking") {
		t.Error("status shown without verbose")
	}
}

func TestConsole_Markdown(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out, true, false)
	c.Reply("**bold** text")
	if !strings.Contains(out.String(), "bold") {
		t.Errorf("rendered reply missing text: %q", out.String())
	}
}
