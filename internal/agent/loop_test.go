package agent

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alterlabs/alter/internal/observe"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/store"
	"github.com/alterlabs/alter/internal/tools"
)

// echoTool succeeds with a fixed output; enough for loop-shape tests.
type echoTool struct{ name string }

func (e *echoTool) Name() string               { return e.name }
func (e *echoTool) Description() string        { return "echo" }
func (e *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	return &tools.Result{Success: true, Output: "echoed"}, nil
}

func testLoop(t *testing.T, stub *provider.Stub) (*Loop, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	obs := observe.New(io.Discard, false)
	registry := tools.NewRegistry(obs.Log())
	registry.Register(&echoTool{name: "shell"})
	registry.Register(&echoTool{name: "file"})

	loop := NewLoop(LoopConfig{
		Store:    s,
		Provider: stub,
		Registry: registry,
		Executor: tools.NewExecutor(registry, obs.Log(), 10000),
		Bucket:   NewTokenBucket(1000, time.Second, 1000),
		Usage:    NewUsageAccountant(prometheus.NewRegistry()),
		Observer: obs,
	})
	return loop, s
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestLoop_PlainTextCompletes(t *testing.T) {
	stub := provider.NewStub(provider.Response{Text: "hello there"})
	loop, s := testLoop(t, stub)

	events := collect(t, loop.Run(context.Background(), "hi", RunOptions{SessionID: "s1"}))
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Kind != EventDone || last.Text != "hello there" {
		t.Fatalf("terminal = %+v", last)
	}
	for _, e := range events {
		if e.Kind == EventError {
			t.Fatalf("unexpected error event: %+v", e)
		}
	}

	tasks, err := s.RecentTasks("s1", 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v, %v", tasks, err)
	}
	if tasks[0].Status != store.TaskCompleted {
		t.Errorf("status = %s", tasks[0].Status)
	}

	// Both turns recorded.
	rows, _ := s.ConversationHistory("s1")
	if len(rows) != 2 || rows[0].Role != "user" || rows[1].Role != "model" {
		t.Errorf("conversation = %+v", rows)
	}
}

func TestLoop_ToolCallThenDone(t *testing.T) {
	stub := provider.NewStub(
		provider.Response{ToolCalls: []provider.ToolCall{
			{ID: "1", Name: "shell", Args: map[string]any{"command": "ls"}},
		}},
		provider.Response{Text: "finished"},
	)
	loop, s := testLoop(t, stub)

	events := collect(t, loop.Run(context.Background(), "list files", RunOptions{SessionID: "s1"}))

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{EventToolCall, EventToolResult, EventText, EventDone}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}

	// Every tool_call pairs with a tool_result of the same name.
	if events[0].ToolName != "shell" || events[1].ToolName != "shell" {
		t.Errorf("tool events = %+v", events[:2])
	}
	if !events[1].Result.Success {
		t.Errorf("tool result = %+v", events[1].Result)
	}

	// The tool call landed in the log, attached to the task.
	tasks, _ := s.RecentTasks("s1", 1)
	calls, err := s.ToolCallsForTask(tasks[0].ID)
	if err != nil || len(calls) != 1 || calls[0].ToolName != "shell" {
		t.Errorf("tool calls = %+v, %v", calls, err)
	}
}

func TestLoop_BatchInterleavesInOrder(t *testing.T) {
	stub := provider.NewStub(
		provider.Response{ToolCalls: []provider.ToolCall{
			{ID: "1", Name: "shell", Args: map[string]any{"command": "ls"}},
			{ID: "2", Name: "file", Args: map[string]any{"action": "list", "path": "."}},
		}},
		provider.Response{Text: "done"},
	)
	loop, _ := testLoop(t, stub)

	events := collect(t, loop.Run(context.Background(), "go", RunOptions{SessionID: "s1"}))

	var toolEvents []Event
	for _, e := range events {
		if e.Kind == EventToolCall || e.Kind == EventToolResult {
			toolEvents = append(toolEvents, e)
		}
	}
	// Calls are announced first, then results follow in issuance order.
	if len(toolEvents) != 4 {
		t.Fatalf("tool events = %+v", toolEvents)
	}
	if toolEvents[0].ToolName != "shell" || toolEvents[1].ToolName != "file" {
		t.Errorf("call order: %+v", toolEvents[:2])
	}
	if toolEvents[2].ToolName != "shell" || toolEvents[3].ToolName != "file" {
		t.Errorf("result order: %+v", toolEvents[2:])
	}
}

func TestLoop_StuckTerminates(t *testing.T) {
	stub := provider.NewStub()
	stub.Fallback = &provider.Response{ToolCalls: []provider.ToolCall{
		{ID: "1", Name: "shell", Args: map[string]any{"command": "ls"}},
	}}
	loop, s := testLoop(t, stub)

	events := collect(t, loop.Run(context.Background(), "loop forever", RunOptions{
		SessionID:     "s1",
		MaxIterations: 6,
	}))

	var sawWarning, sawError bool
	for _, e := range events {
		switch e.Kind {
		case EventStuckWarning:
			sawWarning = true
		case EventError:
			sawError = true
			if !sawWarning {
				t.Error("error before any stuck_warning")
			}
		case EventDone:
			t.Error("stuck run must not end with done")
		}
	}
	if !sawWarning || !sawError {
		t.Fatalf("warning=%v error=%v", sawWarning, sawError)
	}

	tasks, _ := s.RecentTasks("s1", 1)
	if tasks[0].Status != store.TaskStuck {
		t.Errorf("status = %s", tasks[0].Status)
	}
}

func TestLoop_ThinkingEventEmitted(t *testing.T) {
	stub := provider.NewStub(provider.Response{Thinking: "pondering", Text: "answer"})
	loop, _ := testLoop(t, stub)

	events := collect(t, loop.Run(context.Background(), "q", RunOptions{SessionID: "s1"}))
	if events[0].Kind != EventThinking || events[0].Text != "pondering" {
		t.Errorf("events = %+v", events)
	}
}

func TestLoop_ShutdownStopsRun(t *testing.T) {
	stub := provider.NewStub()
	stub.Fallback = &provider.Response{ToolCalls: []provider.ToolCall{
		{ID: "1", Name: "shell", Args: map[string]any{"command": "ls"}},
	}}
	loop, s := testLoop(t, stub)

	var down atomic.Bool
	loop.shuttingDown = down.Load

	// Let one iteration pass, then flip the flag.
	go func() {
		time.Sleep(100 * time.Millisecond)
		down.Store(true)
	}()

	events := collect(t, loop.Run(context.Background(), "work", RunOptions{SessionID: "s1"}))
	last := events[len(events)-1]
	if last.Kind != EventDone || !strings.Contains(last.Text, "stopped") {
		t.Fatalf("terminal = %+v", last)
	}

	tasks, _ := s.RecentTasks("s1", 1)
	if tasks[0].Status != store.TaskFailed {
		t.Errorf("status = %s", tasks[0].Status)
	}
}

func TestLoop_CancelledRunStillTerminates(t *testing.T) {
	stub := provider.NewStub()
	stub.Fallback = &provider.Response{Text: "unreachable"}

	for i := 0; i < 100; i++ {
		loop, s := testLoop(t, stub)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		events := collect(t, loop.Run(ctx, "hi", RunOptions{SessionID: "s1"}))
		if len(events) == 0 {
			t.Fatal("cancelled run produced no events")
		}
		last := events[len(events)-1]
		if !last.Terminal() {
			t.Fatalf("stream ended with %+v, not a terminal event", last)
		}
		if last.Kind != EventDone || !strings.Contains(last.Text, "cancelled") {
			t.Fatalf("terminal = %+v", last)
		}

		tasks, _ := s.RecentTasks("s1", 1)
		if len(tasks) != 1 || tasks[0].Status != store.TaskFailed {
			t.Fatalf("tasks = %+v", tasks)
		}
	}
}

func TestContextAssembler(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	obs := observe.New(io.Discard, false)
	registry := tools.NewRegistry(obs.Log())
	registry.Register(&echoTool{name: "shell"})

	if err := s.UpsertMemory("deploy-host", "deploys run from ci-03", "", 8); err != nil {
		t.Fatal(err)
	}
	task, _ := s.CreateTask("s1", "check the deploy host")
	_ = s.FinishTask(task.ID, store.TaskCompleted, "ci-03 reachable")
	bg, _ := s.CreateTask(AutonomousSessionID, "index the docs folder")
	_ = s.FinishTask(bg.ID, store.TaskCompleted, "done")

	a := NewContextAssembler(s, registry)
	prompt := a.Assemble("what is the deploy host?", "s1")

	for _, want := range []string{
		"Available tools:",
		"- shell: echo",
		"Relevant Memories:",
		"deploy-host",
		"Recent Task History:",
		"[completed] check the deploy host",
		"Background Activity",
		"index the docs folder",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// The autonomous session must not see itself as background.
	auto := a.Assemble("anything", AutonomousSessionID)
	if strings.Contains(auto, "Background Activity") {
		t.Error("autonomous prompt contains background block")
	}
}
