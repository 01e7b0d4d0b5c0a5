package tools

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alterlabs/alter/internal/guard"
)

const maxListEntries = 500

// FileTool exposes filesystem access scoped by the guard policy.
type FileTool struct {
	guard   *guard.Guard
	workdir string
}

func NewFileTool(g *guard.Guard, workdir string) *FileTool {
	return &FileTool{guard: g, workdir: workdir}
}

func (t *FileTool) Name() string { return "file" }

func (t *FileTool) Description() string {
	return "Read, write, append, list, delete, stat or send files inside the workspace."
}

func (t *FileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "One of: read, write, append, list, delete, exists, stat, send",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory path",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content for write and append",
			},
		},
		"required": []string{"action", "path"},
	}
}

func (t *FileTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	action, _ := args["action"].(string)
	path, _ := args["path"].(string)
	if path == "" {
		return Failure("path is required"), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.workdir, path)
	}
	if v := t.guard.CheckPath(path); v != nil {
		return Failure("%v", v), nil
	}

	switch action {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return Failure("read failed: %v", err), nil
		}
		return &Result{Success: true, Output: string(data)}, nil

	case "write", "append":
		content, _ := args["content"].(string)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Failure("mkdir failed: %v", err), nil
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if action == "append" {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return Failure("open failed: %v", err), nil
		}
		_, werr := f.WriteString(content)
		cerr := f.Close()
		if werr != nil {
			return Failure("write failed: %v", werr), nil
		}
		if cerr != nil {
			return Failure("close failed: %v", cerr), nil
		}
		return &Result{Success: true, Output: fmt.Sprintf("%s: %d bytes -> %s", action, len(content), path)}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return Failure("list failed: %v", err), nil
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		truncated := false
		if len(entries) > maxListEntries {
			entries = entries[:maxListEntries]
			truncated = true
		}
		var b strings.Builder
		for _, e := range entries {
			marker := ""
			if e.IsDir() {
				marker = "/"
			}
			fmt.Fprintf(&b, "%s%s\n", e.Name(), marker)
		}
		if truncated {
			fmt.Fprintf(&b, "… (showing first %d entries)\n", maxListEntries)
		}
		return &Result{Success: true, Output: b.String()}, nil

	case "delete":
		if err := os.Remove(path); err != nil {
			return Failure("delete failed: %v", err), nil
		}
		return &Result{Success: true, Output: "deleted " + path}, nil

	case "exists":
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return &Result{Success: true, Output: "false"}, nil
			}
			return Failure("stat failed: %v", err), nil
		}
		return &Result{Success: true, Output: "true"}, nil

	case "stat":
		info, err := os.Stat(path)
		if err != nil {
			return Failure("stat failed: %v", err), nil
		}
		kind := "file"
		if info.IsDir() {
			kind = "dir"
		}
		return &Result{
			Success: true,
			Output: fmt.Sprintf("%s %s size=%d mode=%s modified=%s",
				kind, info.Name(), info.Size(), info.Mode(), info.ModTime().Format("2006-01-02 15:04:05")),
		}, nil

	case "send":
		info, err := os.Stat(path)
		if err != nil {
			return Failure("send failed: %v", err), nil
		}
		if info.IsDir() {
			return Failure("cannot send a directory"), nil
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		return &Result{
			Success: true,
			Output:  fmt.Sprintf("file queued for delivery: %s (%d bytes)", path, info.Size()),
			Files:   []FileRef{{Path: path, MIME: mimeType}},
		}, nil

	default:
		return Failure("unknown action: %s", action), nil
	}
}
