package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	replyLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// Console is the line-oriented operator surface used by `recall chat`.
type Console struct {
	mu       sync.Mutex
	in       *bufio.Scanner
	out      io.Writer
	renderer *glamour.TermRenderer
	verbose  bool
}

// NewConsole reads operator lines from in. With markdown set, replies are
// rendered through glamour.
func NewConsole(in io.Reader, out io.Writer, markdown, verbose bool) *Console {
	c := &Console{in: bufio.NewScanner(in), out: out, verbose: verbose}
	c.in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if markdown {
		c.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	}
	return c
}

// ReadLine prints prompt and returns the next input line. io.EOF means the
// input is closed.
func (c *Console) ReadLine(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prompt != "" {
		fmt.Fprint(c.out, prompt)
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.in.Text(), nil
}

// Confirm asks a yes/no question; only "y" or "yes" confirms.
func (c *Console) Confirm(_ context.Context, prompt string) (bool, error) {
	answer, err := c.ReadLine(prompt + " ")
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes", nil
}

func (c *Console) UpdateStatus(status string) {
	if c.verbose {
		fmt.Fprintln(c.out, dimStyle.Render("["+status+"]"))
	}
}

func (c *Console) UpdateTurns(n int) {}

func (c *Console) Log(msg string) {
	fmt.Fprintln(c.out, dimStyle.Render(msg))
}

func (c *Console) Reply(text string) {
	fmt.Fprintln(c.out, replyLabel.Render("ASSISTANT:"))
	if c.renderer != nil {
		if rendered, err := c.renderer.Render(text); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintln(c.out, text)
}

func (c *Console) Report(kind string, err error) {
	fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf("%s error: %v", kind, err)))
}
