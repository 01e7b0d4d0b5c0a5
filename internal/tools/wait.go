package tools

import (
	"context"
	"fmt"
	"time"
)

// WaitTool sleeps for a bounded number of seconds, useful when the model
// needs to wait for an external process.
type WaitTool struct{}

func NewWaitTool() *WaitTool { return &WaitTool{} }

func (t *WaitTool) Name() string { return "wait" }

func (t *WaitTool) Description() string {
	return "Pause for a number of seconds (1 to 60)."
}

func (t *WaitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        "integer",
				"description": "Seconds to wait, clamped to 1..60",
			},
		},
		"required": []string{"seconds"},
	}
}

func (t *WaitTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	seconds, _ := numberArg(args, "seconds")
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 60 {
		seconds = 60
	}

	select {
	case <-ctx.Done():
		return Failure("wait cancelled: %v", ctx.Err()), nil
	case <-time.After(time.Duration(seconds) * time.Second):
	}
	return &Result{Success: true, Output: fmt.Sprintf("waited %d seconds", seconds)}, nil
}
