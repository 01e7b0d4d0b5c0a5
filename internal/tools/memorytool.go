package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/alterlabs/alter/internal/store"
)

// MemoryTool is a thin wrapper over the store's memory table so the model
// can persist facts across runs.
type MemoryTool struct {
	store *store.Store
}

func NewMemoryTool(s *store.Store) *MemoryTool {
	return &MemoryTool{store: s}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Save, get, search or delete long-term memories by key."
}

func (t *MemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "One of: save, get, search, delete",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Memory key (save, get, delete)",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Memory value (save)",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Search query (search)",
			},
			"importance": map[string]any{
				"type":        "integer",
				"description": "1..10, default 5",
			},
		},
		"required": []string{"action"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	action, _ := args["action"].(string)

	switch action {
	case "save":
		key, _ := args["key"].(string)
		content, _ := args["content"].(string)
		if key == "" || content == "" {
			return Failure("save requires key and content"), nil
		}
		importance := 5
		if n, ok := numberArg(args, "importance"); ok {
			importance = n
		}
		category, _ := args["category"].(string)
		if err := t.store.UpsertMemory(key, content, category, importance); err != nil {
			return nil, err
		}
		return &Result{Success: true, Output: "saved memory " + key}, nil

	case "get":
		key, _ := args["key"].(string)
		if key == "" {
			return Failure("get requires key"), nil
		}
		mem, err := t.store.GetMemory(key)
		if err != nil {
			return Failure("no memory for key %s", key), nil
		}
		return &Result{Success: true, Output: mem.Value}, nil

	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			query, _ = args["key"].(string)
		}
		if query == "" {
			return Failure("search requires query"), nil
		}
		matches, err := t.store.SearchMemory(query, 10)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return &Result{Success: true, Output: "no matching memories"}, nil
		}
		var b strings.Builder
		for _, m := range matches {
			fmt.Fprintf(&b, "%s: %s (importance %d)\n", m.Key, m.Value, m.Importance)
		}
		return &Result{Success: true, Output: b.String()}, nil

	case "delete":
		key, _ := args["key"].(string)
		if key == "" {
			return Failure("delete requires key"), nil
		}
		if err := t.store.DeleteMemory(key); err != nil {
			return Failure("delete failed: %v", err), nil
		}
		return &Result{Success: true, Output: "deleted memory " + key}, nil

	default:
		return Failure("unknown action: %s", action), nil
	}
}
