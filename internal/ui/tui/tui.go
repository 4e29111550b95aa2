// Package tui is the full-screen chat surface for `recall chat --tui`.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// TUI forwards controller callbacks into the running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) { t.program.Send(StatusMsg(status)) }
func (t *TUI) UpdateTurns(n int)          { t.program.Send(TurnsMsg(n)) }
func (t *TUI) Log(msg string)             { t.program.Send(LogMsg(msg)) }
func (t *TUI) Reply(text string)          { t.program.Send(ReplyMsg(text)) }

func (t *TUI) Report(kind string, err error) {
	t.program.Send(LogMsg(errorStyle.Render(fmt.Sprintf("%s error: %v", kind, err))))
}

// Confirm shows prompt and waits for the operator's next line.
func (t *TUI) Confirm(ctx context.Context, prompt string) (bool, error) {
	answer := make(chan bool, 1)
	t.program.Send(ConfirmMsg{Prompt: prompt, Answer: answer})
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

type (
	LogMsg    string
	StatusMsg string
	TurnsMsg  int
	ReplyMsg  string
	// DoneMsg ends a submitted line; Quit is set after /q/.
	DoneMsg struct {
		Quit bool
		Err  error
	}
	ConfirmMsg struct {
		Prompt string
		Answer chan<- bool
	}
)

// SubmitFunc handles one operator line off the UI goroutine. It returns
// true when the session is over.
type SubmitFunc func(line string) (quit bool, err error)

type Model struct {
	Title    string
	Status   string
	Turns    int
	Lines    []string
	Input    textinput.Model
	Viewport viewport.Model
	Busy     bool
	Quitting bool
	Ready    bool
	Width    int
	Height   int

	submit   SubmitFunc
	renderer *glamour.TermRenderer
	confirm  *ConfirmMsg
}

func NewModel(title string, submit SubmitFunc) Model {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /q/ to quit"
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Focus()

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	return Model{
		Title:    title,
		Status:   "awaiting_input",
		Input:    ti,
		submit:   submit,
		renderer: renderer,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.Busy {
				return m, nil
			}
			m.Busy = true
			m.Status = "saving memories"
			return m, m.run("/q/")
		case tea.KeyEnter:
			line := strings.TrimSpace(m.Input.Value())
			m.Input.SetValue("")
			if m.confirm != nil {
				a := strings.ToLower(line)
				m.confirm.Answer <- a == "y" || a == "yes"
				m.append(infoStyle.Render("> " + line))
				m.confirm = nil
				return m, nil
			}
			if line == "" || m.Busy {
				return m, nil
			}
			m.append(userStyle.Render("USER: ") + line)
			m.Busy = true
			return m, m.run(line)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-4)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 4
		}
		m.Input.Width = msg.Width - 4
		m.refresh()

	case LogMsg:
		m.append(string(msg))

	case ReplyMsg:
		text := string(msg)
		if m.renderer != nil {
			if out, err := m.renderer.Render(text); err == nil {
				text = strings.TrimRight(out, "\n")
			}
		}
		m.append(titleStyle.Render("ASSISTANT") + "\n" + text)

	case StatusMsg:
		m.Status = string(msg)

	case TurnsMsg:
		m.Turns = int(msg)

	case ConfirmMsg:
		m.confirm = &msg
		m.append(msg.Prompt)

	case DoneMsg:
		m.Busy = false
		if msg.Err != nil {
			m.append(errorStyle.Render(msg.Err.Error()))
		}
		if msg.Quit {
			m.Quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) run(line string) tea.Cmd {
	submit := m.submit
	return func() tea.Msg {
		quit, err := submit(line)
		return DoneMsg{Quit: quit, Err: err}
	}
}

func (m *Model) append(line string) {
	m.Lines = append(m.Lines, line)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.Ready {
		return
	}
	m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
	m.Viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" "+m.Title+" ") +
		infoStyle.Render(fmt.Sprintf(" %s ", m.Status)) +
		fmt.Sprintf(" turns: %d ", m.Turns)

	view := fmt.Sprintf("%s\n%s\n%s", header, m.Viewport.View(), m.Input.View())
	if m.Quitting {
		return view + "\n  Quitting...\n"
	}
	return view
}
