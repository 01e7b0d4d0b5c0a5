// Package tools provides the agent's side-effecting capabilities: shell,
// file, web, code, browser, memory and wait, behind a uniform registry and
// a batch executor with normalization, retries and output shaping.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/alterlabs/alter/internal/provider"
)

// Image is an inline image produced by a tool, base64-encoded.
type Image struct {
	MIME string `json:"mime"`
	Data string `json:"data"`
	ID   string `json:"id,omitempty"`
}

// FileRef describes a file a tool wants delivered to the user.
type FileRef struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
}

// Result is the uniform outcome of a tool invocation. A failed invocation
// is still a Result (Success=false, Error set); only infrastructure faults
// surface as Go errors.
type Result struct {
	Success         bool      `json:"success"`
	Output          string    `json:"output"`
	Error           string    `json:"error,omitempty"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	Images          []Image   `json:"images,omitempty"`
	Files           []FileRef `json:"files,omitempty"`
}

// Failure builds a failed Result with the given error text.
func Failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool is a named capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Registry manages available tools and dispatches execution by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *bolt.Logger
}

func NewRegistry(log *bolt.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool. Registration is idempotent by name; the last
// registration wins.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		r.log.Debug().Str("tool", tool.Name()).Msg("tool re-registered, replacing")
	}
	r.tools[tool.Name()] = tool
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the declarations of all registered tools, sorted by name so
// prompts assembled from it are stable.
func (r *Registry) List() []provider.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]provider.ToolDeclaration, 0, len(r.tools))
	for _, tool := range r.tools {
		decls = append(decls, provider.ToolDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute dispatches a single call. An unknown name yields a failure Result
// rather than an error, and a tool's returned Go error is wrapped into a
// failure Result so the model can react to it as data. Wall-clock time is
// captured either way.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	tool, ok := r.Lookup(name)
	if !ok {
		return Failure("tool not found: %s", name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		r.log.Warn().Str("tool", name).Err(err).Msg("tool execution failed")
		result = Failure("%v", err)
	}
	if result == nil {
		result = Failure("tool %s returned no result", name)
	}
	result.ExecutionTimeMS = elapsed
	return result
}
