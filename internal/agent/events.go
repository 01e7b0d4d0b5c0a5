// Package agent implements the core reasoning loop: it assembles context,
// calls the model, dispatches tool calls, watches for stuck behavior, and
// streams events to the caller.
package agent

import "github.com/alterlabs/alter/internal/tools"

// EventKind discriminates agent stream events.
type EventKind string

const (
	EventThinking     EventKind = "thinking"
	EventText         EventKind = "text"
	EventToolCall     EventKind = "tool_call"
	EventToolResult   EventKind = "tool_result"
	EventStuckWarning EventKind = "stuck_warning"
	EventError        EventKind = "error"
	EventDone         EventKind = "done"
	EventHeartbeat    EventKind = "heartbeat"
)

// Event is one element of a run's ordered stream. Done or Error is always
// terminal.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Text     string         `json:"text,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Result   *tools.Result  `json:"result,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
