package agent

import (
	"fmt"
	"strings"

	"github.com/alterlabs/alter/internal/store"
	"github.com/alterlabs/alter/internal/tools"
)

// AutonomousSessionID is the reserved session the consciousness driver runs
// under. Its activity shows up as background context for user sessions.
const AutonomousSessionID = "autonomous"

const systemPreamble = `You are Alter, a self-directed AI agent. You have tools for the shell,
files, the web, a headless browser, code execution and long-term memory.

Core principles:
- Act, don't just describe. Use tools to produce real results.
- Verify your work: re-read files you wrote, check command exit codes.
- Keep memory: save durable facts with the memory tool.
- Be concise in your final answers.`

// ContextAssembler builds the system prompt for a run. It only reads.
type ContextAssembler struct {
	store    *store.Store
	registry *tools.Registry
}

func NewContextAssembler(s *store.Store, r *tools.Registry) *ContextAssembler {
	return &ContextAssembler{store: s, registry: r}
}

// Assemble composes the preamble, tool list, relevant memories, recent task
// history for the session, and background activity from the autonomous
// session.
func (a *ContextAssembler) Assemble(userMessage, sessionID string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)

	b.WriteString("\n\nAvailable tools:\n")
	for _, decl := range a.registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", decl.Name, decl.Description)
	}

	if memories, err := a.store.SearchMemory(userMessage, 5); err == nil && len(memories) > 0 {
		b.WriteString("\nRelevant Memories:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s: %s\n", m.Key, m.Value)
		}
	}

	if tasks, err := a.store.RecentTasks(sessionID, 5); err == nil && len(tasks) > 0 {
		b.WriteString("\nRecent Task History:\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", t.Status, t.Description, prefix(t.Result, 80))
		}
	}

	if sessionID != AutonomousSessionID {
		if tasks, err := a.store.RecentTasks(AutonomousSessionID, 3); err == nil && len(tasks) > 0 {
			b.WriteString("\nBackground Activity (autonomous):\n")
			for _, t := range tasks {
				fmt.Fprintf(&b, "- [%s] %s\n", t.Status, t.Description)
			}
		}
	}

	return b.String()
}

func prefix(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
