package tools

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/alterlabs/alter/internal/guard"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/store"
)

func testLogger() *bolt.Logger {
	return bolt.New(bolt.NewConsoleHandler(io.Discard))
}

// fakeTool is a scriptable tool for registry and executor tests.
type fakeTool struct {
	name    string
	results []*Result
	errs    []error
	calls   int
	lastCtx context.Context
	args    []map[string]any
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "fake" }
func (f *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	i := f.calls
	f.calls++
	f.lastCtx = ctx
	f.args = append(f.args, args)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var res *Result
	if i < len(f.results) {
		res = f.results[i]
	}
	if res == nil && err == nil {
		res = &Result{Success: true, Output: "ok"}
	}
	return res, err
}

func TestRegistry_RegisterLastWins(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &fakeTool{name: "echo", results: []*Result{{Success: true, Output: "first"}}}
	second := &fakeTool{name: "echo", results: []*Result{{Success: true, Output: "second"}}}

	reg.Register(first)
	reg.Register(second)

	if reg.Count() != 1 {
		t.Fatalf("count = %d", reg.Count())
	}
	res := reg.Execute(context.Background(), "echo", nil)
	if res.Output != "second" {
		t.Errorf("output = %q, want replacement tool", res.Output)
	}
}

func TestRegistry_UnknownToolIsFailureResult(t *testing.T) {
	reg := NewRegistry(testLogger())
	res := reg.Execute(context.Background(), "nope", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "tool not found") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRegistry_WrapsToolError(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&fakeTool{name: "boom", errs: []error{errors.New("kaput")}})

	res := reg.Execute(context.Background(), "boom", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "kaput") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRegistry_ListSortedDeclarations(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&fakeTool{name: "zeta"})
	reg.Register(&fakeTool{name: "alpha"})

	decls := reg.List()
	if len(decls) != 2 || decls[0].Name != "alpha" || decls[1].Name != "zeta" {
		t.Errorf("declarations = %+v", decls)
	}
}

func TestNormalizeArgs(t *testing.T) {
	cases := []struct {
		tool string
		in   map[string]any
		key  string
		want any
	}{
		{"file", map[string]any{"action": "save", "file_path": "a.txt"}, "action", "write"},
		{"file", map[string]any{"action": "save", "file_path": "a.txt"}, "path", "a.txt"},
		{"shell", map[string]any{"cmd": "ls"}, "command", "ls"},
		{"browser", map[string]any{"action": "visit", "website": "https://x.dev"}, "action", "navigate"},
		{"browser", map[string]any{"action": "visit", "website": "https://x.dev"}, "url", "https://x.dev"},
		{"web", map[string]any{"urls": []any{"https://a.dev", "https://b.dev"}}, "url", "https://a.dev"},
		{"memory", map[string]any{"action": "remember", "key": "k", "data": "v"}, "action", "save"},
		{"memory", map[string]any{"action": "remember", "key": "k", "data": "v"}, "content", "v"},
	}
	for _, tc := range cases {
		out, _ := normalizeArgs(tc.tool, tc.in)
		if got := out[tc.key]; got != tc.want {
			t.Errorf("%s %v: %s = %v, want %v", tc.tool, tc.in, tc.key, got, tc.want)
		}
	}
}

func TestNormalizeArgs_SearchBecomesNavigate(t *testing.T) {
	out, notes := normalizeArgs("browser", map[string]any{"action": "search", "query": "go rod docs"})
	if out["action"] != "navigate" {
		t.Fatalf("action = %v", out["action"])
	}
	url, _ := out["url"].(string)
	if !strings.Contains(url, "go+rod+docs") {
		t.Errorf("url = %q", url)
	}
	if len(notes) == 0 {
		t.Error("expected a normalization note")
	}
}

func TestNormalizeArgs_DoesNotClobberCanonical(t *testing.T) {
	out, _ := normalizeArgs("file", map[string]any{"path": "real.txt", "file_path": "wrong.txt"})
	if out["path"] != "real.txt" {
		t.Errorf("path = %v", out["path"])
	}
}

func TestExecutor_BatchPreservesOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&fakeTool{name: "a", results: []*Result{{Success: true, Output: "A"}}})
	reg.Register(&fakeTool{name: "b", results: []*Result{{Success: true, Output: "B"}}})

	exec := NewExecutor(reg, testLogger(), 10000)
	results := exec.ExecuteBatch(context.Background(), []provider.ToolCall{
		{Name: "b"}, {Name: "a"},
	})
	if len(results) != 2 || results[0].Name != "b" || results[1].Name != "a" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Response.Output != "B" || results[1].Response.Output != "A" {
		t.Errorf("outputs out of order: %+v", results)
	}
}

func TestExecutor_RetriesFaultsNotFailures(t *testing.T) {
	saved := retryBackoff
	retryBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { retryBackoff = saved }()

	flaky := &fakeTool{
		name: "flaky",
		errs: []error{errors.New("transient"), nil},
	}
	reg := NewRegistry(testLogger())
	reg.Register(flaky)

	exec := NewExecutor(reg, testLogger(), 10000)
	results := exec.ExecuteBatch(context.Background(), []provider.ToolCall{{Name: "flaky"}})
	if !results[0].Response.Success {
		t.Fatalf("expected success after retry: %+v", results[0].Response)
	}
	if flaky.calls != 2 {
		t.Errorf("calls = %d, want 2", flaky.calls)
	}

	// A failure Result is data, never retried.
	failing := &fakeTool{
		name:    "failing",
		results: []*Result{{Success: false, Error: "bad args"}},
	}
	reg.Register(failing)
	exec.ExecuteBatch(context.Background(), []provider.ToolCall{{Name: "failing"}})
	if failing.calls != 1 {
		t.Errorf("failure result retried %d times", failing.calls)
	}
}

func TestExecutor_TruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", 150)
	reg := NewRegistry(testLogger())
	reg.Register(&fakeTool{name: "verbose", results: []*Result{{Success: true, Output: long}}})

	exec := NewExecutor(reg, testLogger(), 100)
	results := exec.ExecuteBatch(context.Background(), []provider.ToolCall{{Name: "verbose"}})
	out := results[0].Response.Output
	if !strings.Contains(out, "[truncated 50 chars]") {
		t.Errorf("output = %q", out)
	}
	if !strings.HasPrefix(out, strings.Repeat("x", 100)) {
		t.Error("truncation removed leading content")
	}
}

func TestExecutor_ImagesBypassTruncation(t *testing.T) {
	long := strings.Repeat("x", 150)
	reg := NewRegistry(testLogger())
	reg.Register(&fakeTool{name: "shooter", results: []*Result{{
		Success: true,
		Output:  long,
		Images:  []Image{{MIME: "image/jpeg", Data: "abcd", ID: "s1"}},
	}}})

	exec := NewExecutor(reg, testLogger(), 100)
	results := exec.ExecuteBatch(context.Background(), []provider.ToolCall{{Name: "shooter"}})
	if results[0].Response.Output != long {
		t.Error("image-bearing result was truncated")
	}
}

func TestShellTool(t *testing.T) {
	workdir := t.TempDir()
	g := guard.New(guard.DefaultPolicy(workdir))
	tool := NewShellTool(g, workdir, 30*time.Second)

	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Output, "hello") {
		t.Errorf("result = %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]any{"command": "exit 3"})
	if res.Success || res.Error != "Exit code: 3" {
		t.Errorf("exit result = %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]any{"command": "sudo reboot"})
	if res.Success || !strings.Contains(res.Error, "dangerous_command") {
		t.Errorf("denylist result = %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]any{"command": "ls", "workdir": "/etc"})
	if res.Success {
		t.Errorf("workdir escape allowed: %+v", res)
	}
}

func TestShellTool_Timeout(t *testing.T) {
	workdir := t.TempDir()
	g := guard.New(guard.DefaultPolicy(workdir))
	tool := NewShellTool(g, workdir, 30*time.Second)

	res, err := tool.Execute(context.Background(), map[string]any{
		"command":         "sleep 5",
		"timeout_seconds": 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !strings.Contains(res.Error, "timed out") {
		t.Errorf("result = %+v", res)
	}
}

func TestFileTool_RoundTrip(t *testing.T) {
	workdir := t.TempDir()
	g := guard.New(guard.DefaultPolicy(workdir))
	tool := NewFileTool(g, workdir)
	ctx := context.Background()

	res, _ := tool.Execute(ctx, map[string]any{"action": "exists", "path": "note.txt"})
	if res.Output != "false" {
		t.Fatalf("exists before write = %+v", res)
	}

	res, _ = tool.Execute(ctx, map[string]any{"action": "write", "path": "note.txt", "content": "hello"})
	if !res.Success {
		t.Fatalf("write failed: %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "append", "path": "note.txt", "content": " world"})
	if !res.Success {
		t.Fatalf("append failed: %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "read", "path": "note.txt"})
	if res.Output != "hello world" {
		t.Errorf("read = %q", res.Output)
	}

	res, _ = tool.Execute(ctx, map[string]any{"action": "list", "path": "."})
	if !strings.Contains(res.Output, "note.txt") {
		t.Errorf("list = %q", res.Output)
	}

	res, _ = tool.Execute(ctx, map[string]any{"action": "stat", "path": "note.txt"})
	if !res.Success || !strings.Contains(res.Output, "size=11") {
		t.Errorf("stat = %+v", res)
	}

	res, _ = tool.Execute(ctx, map[string]any{"action": "send", "path": "note.txt"})
	if !res.Success || len(res.Files) != 1 || res.Files[0].MIME == "" {
		t.Errorf("send = %+v", res)
	}

	res, _ = tool.Execute(ctx, map[string]any{"action": "delete", "path": "note.txt"})
	if !res.Success {
		t.Errorf("delete = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(workdir, "note.txt")); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}
}

func TestFileTool_RejectsSensitiveAndEscapes(t *testing.T) {
	workdir := t.TempDir()
	g := guard.New(guard.DefaultPolicy(workdir))
	tool := NewFileTool(g, workdir)
	ctx := context.Background()

	res, _ := tool.Execute(ctx, map[string]any{"action": "read", "path": ".env"})
	if res.Success {
		t.Error("sensitive file readable")
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "read", "path": "../outside.txt"})
	if res.Success {
		t.Error("traversal allowed")
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "read", "path": "/etc/hosts"})
	if res.Success {
		t.Error("absolute path outside roots allowed")
	}
}

func TestCodeTool_Bash(t *testing.T) {
	workdir := t.TempDir()
	tool := NewCodeTool(workdir, 30*time.Second)

	res, err := tool.Execute(context.Background(), map[string]any{
		"language": "bash",
		"code":     "echo $((6 * 7))",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Output, "42") {
		t.Errorf("result = %+v", res)
	}

	res, _ = tool.Execute(context.Background(), map[string]any{
		"language": "cobol",
		"code":     "x",
	})
	if res.Success {
		t.Error("unsupported language accepted")
	}
}

func TestWaitTool_Cancel(t *testing.T) {
	tool := NewWaitTool()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	res, err := tool.Execute(ctx, map[string]any{"seconds": 60})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("cancelled wait reported success")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancel did not interrupt the wait")
	}
}

func TestMemoryTool(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tool := NewMemoryTool(s)
	ctx := context.Background()

	res, _ := tool.Execute(ctx, map[string]any{
		"action": "save", "key": "latest-uuid", "content": "ABC-123", "importance": 7,
	})
	if !res.Success {
		t.Fatalf("save = %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "get", "key": "latest-uuid"})
	if res.Output != "ABC-123" {
		t.Errorf("get = %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "search", "query": "latest-uuid"})
	if !strings.Contains(res.Output, "ABC-123") {
		t.Errorf("search = %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "delete", "key": "latest-uuid"})
	if !res.Success {
		t.Errorf("delete = %+v", res)
	}
	res, _ = tool.Execute(ctx, map[string]any{"action": "get", "key": "latest-uuid"})
	if res.Success {
		t.Error("deleted memory still readable")
	}
}

func TestCleanScreenshots(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	os.WriteFile(old, []byte("x"), 0o644)
	os.WriteFile(fresh, []byte("x"), 0o644)
	stale := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, stale, stale)

	removed := CleanScreenshots(dir, 24*time.Hour, 100)
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale screenshot survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh screenshot removed")
	}

	// File-count trim keeps only the newest maxFiles.
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "s"+string(rune('a'+i))+".jpg")
		os.WriteFile(p, []byte("x"), 0o644)
		mod := time.Now().Add(-time.Duration(i) * time.Minute)
		os.Chtimes(p, mod, mod)
	}
	removed = CleanScreenshots(dir, 24*time.Hour, 3)
	if removed != 3 { // 6 files present, keep 3
		t.Errorf("trim removed = %d", removed)
	}
}
