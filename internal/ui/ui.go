// Package ui defines the surface an agent run renders to. The CLI picks a
// concrete implementation: the bubbletea TUI for interactive sessions, the
// plain console writer for piped output, Silent for headless runs.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alterlabs/alter/internal/agent"
)

type UI interface {
	Event(e agent.Event)
	Status(status string)
}

// Silent discards everything.
type Silent struct{}

func (Silent) Event(agent.Event) {}
func (Silent) Status(string)     {}

// Console renders a plain-text transcript to w.
type Console struct {
	W io.Writer
}

func (c Console) Event(e agent.Event) {
	switch e.Kind {
	case agent.EventText:
		fmt.Fprintln(c.W, e.Text)
	case agent.EventToolCall:
		fmt.Fprintf(c.W, "-> %s %s\n", e.ToolName, compactArgs(e.ToolArgs))
	case agent.EventToolResult:
		if e.Result == nil {
			return
		}
		mark := "ok"
		body := e.Result.Output
		if !e.Result.Success {
			mark = "failed"
			body = e.Result.Error
		}
		fmt.Fprintf(c.W, "<- %s: %s\n", mark, firstLine(body))
	case agent.EventStuckWarning, agent.EventError:
		fmt.Fprintf(c.W, "! %s\n", e.Text)
	}
}

func (c Console) Status(status string) {
	fmt.Fprintf(c.W, "[%s]\n", status)
}

func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > 120 {
		s = s[:120] + "…"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160] + "…"
	}
	return s
}
