package provider

import (
	"encoding/json"
	"testing"

	"github.com/ollama/ollama/api"
)

func TestToolCallArgs(t *testing.T) {
	var args api.ToolCallFunctionArguments
	if err := json.Unmarshal([]byte(`{"path":"notes.txt","count":3,"recursive":true}`), &args); err != nil {
		t.Fatal(err)
	}

	got := toolCallArgs(args)
	if got["path"] != "notes.txt" {
		t.Errorf("path = %v", got["path"])
	}
	if got["count"] != float64(3) {
		t.Errorf("count = %v", got["count"])
	}
	if got["recursive"] != true {
		t.Errorf("recursive = %v", got["recursive"])
	}
}

func TestToolCallArgs_Empty(t *testing.T) {
	var args api.ToolCallFunctionArguments
	if got := toolCallArgs(args); len(got) != 0 {
		t.Errorf("empty arguments produced %v", got)
	}
}
