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
)

// interpreters maps supported languages to interpreter binary and source
// file suffix.
var interpreters = map[string]struct {
	bin    string
	suffix string
}{
	"python":     {"python3", ".py"},
	"javascript": {"node", ".js"},
	"bash":       {"bash", ".sh"},
}

// CodeTool executes a snippet by writing it to a temp file and spawning the
// matching interpreter.
type CodeTool struct {
	workdir string
	timeout time.Duration
}

func NewCodeTool(workdir string, timeout time.Duration) *CodeTool {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CodeTool{workdir: workdir, timeout: timeout}
}

func (t *CodeTool) Name() string { return "code" }

func (t *CodeTool) Description() string {
	return "Execute a code snippet in python, javascript or bash and return its output."
}

func (t *CodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{
				"type":        "string",
				"description": "One of: python, javascript, bash",
			},
			"code": map[string]any{
				"type":        "string",
				"description": "The code to execute",
			},
		},
		"required": []string{"language", "code"},
	}
}

func (t *CodeTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	language, _ := args["language"].(string)
	language = strings.ToLower(strings.TrimSpace(language))
	// aliases the model tends to use
	switch language {
	case "py", "python3":
		language = "python"
	case "js", "node", "nodejs":
		language = "javascript"
	case "sh", "shell":
		language = "bash"
	}

	interp, ok := interpreters[language]
	if !ok {
		return Failure("unsupported language: %s (use python, javascript or bash)", language), nil
	}

	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return Failure("code is required"), nil
	}

	tmp, err := os.CreateTemp("", "snippet-*"+interp.suffix)
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write snippet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close snippet: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interp.bin, tmp.Name())
	cmd.Dir = t.workdir
	cmd.Env = scrubbedEnv()
	cmd.WaitDelay = 5 * time.Second

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err = cmd.Run()
	output := buf.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return Failure("code execution timed out after %s", t.timeout), nil
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
		return nil, fmt.Errorf("interpreter spawn failed: %w", err)
	}
	return &Result{Success: true, Output: output}, nil
}
