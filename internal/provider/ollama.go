package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client *api.Client
	model  string
}

func NewOllamaProvider(model string) (*OllamaProvider, error) {
	if model == "" {
		model = "qwen2.5"
	}

	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	uri, _ := url.Parse(baseURL)
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	var apiMsgs []api.Message
	if req.SystemPrompt != "" {
		apiMsgs = append(apiMsgs, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		if len(m.ToolResponses) > 0 {
			for _, tr := range m.ToolResponses {
				apiMsgs = append(apiMsgs, api.Message{Role: "tool", Content: tr.Content})
			}
			continue
		}
		apiMsgs = append(apiMsgs, api.Message{Role: role, Content: m.Content})
	}

	var tools []api.Tool
	for _, decl := range req.Tools {
		props := api.NewToolPropertiesMap()
		rawProps, _ := decl.Parameters["properties"].(map[string]any)
		for name, raw := range rawProps {
			prop, _ := raw.(map[string]any)
			typ := "string"
			if t, ok := prop["type"].(string); ok {
				typ = t
			}
			desc, _ := prop["description"].(string)
			props.Set(name, api.ToolProperty{
				Type:        api.PropertyType{typ},
				Description: desc,
			})
		}

		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: props,
					Required:   requiredStrings(decl.Parameters),
				},
			},
		})
	}

	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Tools:    tools,
	}

	var result Response
	var promptTokens, evalTokens int
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		result.Text += resp.Message.Content
		if resp.Message.Thinking != "" {
			result.Thinking += resp.Message.Thinking
		}
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			evalTokens = resp.EvalCount
			result.FinishReason = resp.DoneReason
		}
		for _, tc := range resp.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   "call_" + tc.Function.Name,
				Name: tc.Function.Name,
				Args: toolCallArgs(tc.Function.Arguments),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	result.Usage = Usage{InputTokens: promptTokens, OutputTokens: evalTokens}
	if result.FinishReason == "" {
		result.FinishReason = "stop"
	}
	return &result, nil
}

// toolCallArgs flattens the API's ordered argument type into a plain map by
// round-tripping through its JSON form.
func toolCallArgs(args api.ToolCallFunctionArguments) map[string]any {
	data, err := json.Marshal(args)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func requiredStrings(params map[string]any) []string {
	if required, ok := params["required"].([]string); ok {
		return required
	}
	raw, _ := params["required"].([]any)
	var out []string
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &api.EmbeddingRequest{
		Model:  p.model,
		Prompt: text,
	}
	resp, err := p.client.Embeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
