package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alterlabs/alter/internal/guard"
	"github.com/alterlabs/alter/internal/observe"
)

const maxShellTimeout = 5 * time.Minute

// ShellTool runs a command under bash inside an allowed working directory.
type ShellTool struct {
	guard   *guard.Guard
	workdir string
	timeout time.Duration
}

func NewShellTool(g *guard.Guard, workdir string, timeout time.Duration) *ShellTool {
	if timeout <= 0 || timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}
	return &ShellTool{guard: g, workdir: workdir, timeout: timeout}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command. Returns stdout and stderr; non-zero exit codes are reported as errors."
}

func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"workdir": map[string]any{
				"type":        "string",
				"description": "Working directory (optional, defaults to the workspace)",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds, at most 300",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return Failure("command is required"), nil
	}
	if v := t.guard.CheckCommand(command); v != nil {
		return Failure("%v", v), nil
	}

	workdir := t.workdir
	if dir, ok := args["workdir"].(string); ok && dir != "" {
		workdir = dir
	}
	if v := t.guard.CheckDir(workdir); v != nil {
		return Failure("%v", v), nil
	}

	timeout := t.timeout
	if secs, ok := numberArg(args, "timeout_seconds"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
		if timeout > maxShellTimeout {
			timeout = maxShellTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = workdir
	cmd.Env = scrubbedEnv()
	cmd.WaitDelay = 5 * time.Second // SIGKILL grace after context cancel

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := observe.Redact(buf.String())

	if runCtx.Err() == context.DeadlineExceeded {
		return Failure("command timed out after %s", timeout), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Success: false,
				Output:  output,
				Error:   fmt.Sprintf("Exit code: %d", exitErr.ExitCode()),
			}, nil
		}
		return nil, fmt.Errorf("shell spawn failed: %w", err)
	}

	return &Result{Success: true, Output: output}, nil
}

// scrubbedEnv returns the process environment minus credential-bearing
// variables.
func scrubbedEnv() []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if observe.IsSensitiveEnv(name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// numberArg reads an argument that may arrive as float64 (JSON), int, or a
// numeric string.
func numberArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
