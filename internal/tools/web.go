package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alterlabs/alter/internal/guard"
)

const maxWebBodyBytes = 1 << 20 // 1 MiB

// Request headers a model must not smuggle through the web tool.
var strippedHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"x-auth-token":        true,
}

// WebTool performs HTTP requests against guard-approved URLs.
type WebTool struct {
	guard  *guard.Guard
	client *http.Client
}

func NewWebTool(g *guard.Guard, timeout time.Duration) *WebTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebTool{
		guard:  g,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *WebTool) Name() string { return "web" }

func (t *WebTool) Description() string {
	return "Make an HTTP request to a public URL and return the response body."
}

func (t *WebTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to request (http or https)",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, defaults to GET",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body for POST/PUT",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra request headers",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return Failure("url is required"), nil
	}
	if v := t.guard.CheckURL(rawURL); v != nil {
		return Failure("%v", v), nil
	}

	method := "GET"
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if b, ok := args["body"].(string); ok && b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Failure("invalid request: %v", err), nil
	}
	req.Header.Set("User-Agent", "alter-agent/1.0")
	if headers, ok := args["headers"].(map[string]any); ok {
		for name, raw := range headers {
			if strippedHeaders[strings.ToLower(name)] {
				continue
			}
			if value, ok := raw.(string); ok {
				req.Header.Set(name, value)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	truncated := false
	if len(data) > maxWebBodyBytes {
		data = data[:maxWebBodyBytes]
		truncated = true
	}

	output := fmt.Sprintf("HTTP %d %s\n\n%s", resp.StatusCode, resp.Header.Get("Content-Type"), data)
	if truncated {
		output += "\n… [body truncated]"
	}
	return &Result{
		Success: resp.StatusCode < 400,
		Output:  output,
		Error:   errorForStatus(resp.StatusCode),
	}, nil
}

func errorForStatus(status int) string {
	if status < 400 {
		return ""
	}
	return fmt.Sprintf("HTTP %d", status)
}
