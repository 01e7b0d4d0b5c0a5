package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-pro-latest"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	geminiModel := p.client.GenerativeModel(p.model)

	if req.SystemPrompt != "" {
		geminiModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	if req.Temperature > 0 {
		geminiModel.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		geminiModel.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, decl := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  schemaFromParameters(decl.Parameters),
			})
		}
		geminiModel.Tools = []*genai.Tool{tool}
	}

	cs := geminiModel.StartChat()

	messages := req.Messages
	if len(messages) == 0 {
		return nil, errors.New("empty message list")
	}

	for _, m := range messages[:len(messages)-1] {
		cs.History = append(cs.History, contentFromMessage(m))
	}

	last := messages[len(messages)-1]
	resp, err := cs.SendMessage(ctx, partsFromMessage(last)...)
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned", ErrServer)
	}
	cand := resp.Candidates[0]

	result := &Response{
		FinishReason: cand.FinishReason.String(),
	}
	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			result.Text += string(v)
		case genai.FunctionCall:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}

func contentFromMessage(m Message) *genai.Content {
	role := "user"
	if m.Role == "model" {
		role = "model"
	}
	return &genai.Content{
		Role:  role,
		Parts: partsFromMessage(m),
	}
}

func partsFromMessage(m Message) []genai.Part {
	var parts []genai.Part
	if len(m.ToolResponses) > 0 {
		for _, tr := range m.ToolResponses {
			parts = append(parts, genai.FunctionResponse{
				Name:     tr.Name,
				Response: map[string]any{"result": tr.Content},
			})
		}
		return parts
	}
	if m.Content != "" {
		parts = append(parts, genai.Text(m.Content))
	}
	for _, img := range m.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			continue
		}
		parts = append(parts, genai.Blob{MIMEType: img.MIME, Data: data})
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
	}
	if len(parts) == 0 {
		parts = append(parts, genai.Text(""))
	}
	return parts
}

// schemaFromParameters converts a JSON-schema-shaped map into the genai
// schema type. Only the object/properties subset the tools declare is mapped.
func schemaFromParameters(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	props, _ := params["properties"].(map[string]any)
	if len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, _ := raw.(map[string]any)
			child := &genai.Schema{Type: genai.TypeString}
			if desc, ok := prop["description"].(string); ok {
				child.Description = desc
			}
			switch prop["type"] {
			case "integer", "number":
				child.Type = genai.TypeNumber
			case "boolean":
				child.Type = genai.TypeBoolean
			}
			schema.Properties[name] = child
		}
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	} else if rawRequired, ok := params["required"].([]any); ok {
		for _, r := range rawRequired {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel("text-embedding-004")
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return res.Embedding.Values, nil
}
