package provider

import (
	"context"
)

// Message represents one chat turn.
type Message struct {
	Role          string         `json:"role"` // "user", "model" or "system"
	Content       string         `json:"content"`
	Images        []Image        `json:"images,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	ToolResponses []ToolResponse `json:"tool_responses,omitempty"`
}

// Image is an inline image attachment.
type Image struct {
	MIME string `json:"mime"`
	Data string `json:"data"` // base64
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse carries a tool's output back to the model.
type ToolResponse struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ToolDeclaration describes a callable tool to the model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one model invocation.
type Request struct {
	Messages       []Message         `json:"messages"`
	Tools          []ToolDeclaration `json:"tools,omitempty"`
	SystemPrompt   string            `json:"system_prompt,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ThinkingBudget int               `json:"thinking_budget,omitempty"`
}

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
}

// Response is the model's output.
type Response struct {
	Text         string     `json:"text,omitempty"`
	Thinking     string     `json:"thinking,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason"`
}

// Provider defines the interface for model interactions.
type Provider interface {
	// Chat sends one request to the model and returns a response.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}
