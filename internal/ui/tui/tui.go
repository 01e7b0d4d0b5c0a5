// Package tui is the interactive chat surface: a transcript viewport over a
// text input, fed by agent events.
package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alterlabs/alter/internal/agent"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))
)

// Submit is called with the user's message when they press enter. It must
// not block; stream the reply back with EventMsg sends.
type Submit func(text string)

type EventMsg agent.Event

type StatusMsg string

type Model struct {
	Status   string
	Busy     bool
	Quitting bool

	lines    []string
	viewport viewport.Model
	input    textinput.Model
	submit   Submit
	ready    bool
	width    int
	height   int
}

func NewModel(submit Submit) Model {
	in := textinput.New()
	in.Placeholder = "Ask the agent anything"
	in.Focus()
	in.CharLimit = 4096
	return Model{
		Status: "ready",
		input:  in,
		submit: submit,
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
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" && !m.Busy {
				m.appendLine(userStyle.Render("you: ") + text)
				m.input.Reset()
				m.Busy = true
				m.Status = "working"
				if m.submit != nil {
					m.submit(text)
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-5)
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 5
		}

	case EventMsg:
		if line := renderEvent(agent.Event(msg)); line != "" {
			m.appendLine(line)
		}
		if agent.Event(msg).Terminal() {
			m.Busy = false
			m.Status = "ready"
		}

	case StatusMsg:
		m.Status = string(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if m.ready {
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Starting..."
	}

	header := titleStyle.Render(" Alter ") + infoStyle.Render(fmt.Sprintf(" %s ", m.Status))
	view := fmt.Sprintf("%s\n%s\n\n%s", header, m.viewport.View(), m.input.View())

	if m.Quitting {
		return view + "\n  Bye.\n"
	}
	return view
}

func renderEvent(e agent.Event) string {
	switch e.Kind {
	case agent.EventThinking:
		return dimStyle.Render("· " + clip(e.Text, 200))
	case agent.EventText:
		return "alter: " + e.Text
	case agent.EventToolCall:
		return infoStyle.Render("-> " + e.ToolName + " " + clipArgs(e.ToolArgs))
	case agent.EventToolResult:
		if e.Result == nil {
			return ""
		}
		if !e.Result.Success {
			return errorStyle.Render("<- " + clip(e.Result.Error, 200))
		}
		return dimStyle.Render("<- " + clip(e.Result.Output, 200))
	case agent.EventStuckWarning:
		return errorStyle.Render("! " + e.Text)
	case agent.EventError:
		return errorStyle.Render("error: " + e.Text)
	default:
		return ""
	}
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}

func clipArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return clip(string(data), 120)
}

// TUI adapts a running program to the ui.UI interface so the agent stream
// can be forwarded from another goroutine.
type TUI struct {
	program *tea.Program
}

func New(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) Event(e agent.Event) {
	t.program.Send(EventMsg(e))
}

func (t *TUI) Status(status string) {
	t.program.Send(StatusMsg(status))
}
