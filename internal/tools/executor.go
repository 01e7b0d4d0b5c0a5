package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/alterlabs/alter/internal/provider"
)

const (
	executorRetries   = 2
	heartbeatInterval = 5 * time.Second
)

var retryBackoff = []time.Duration{2 * time.Second, 4 * time.Second}

// CallResult pairs a tool call with its shaped result, in issuance order.
type CallResult struct {
	Name     string
	Response *Result
}

// Executor runs batches of tool calls against the registry: it normalizes
// arguments, retries infrastructure faults, emits heartbeats while a call is
// in flight, and truncates oversized text output.
type Executor struct {
	registry       *Registry
	log            *bolt.Logger
	maxOutputChars int
	heartbeat      func(toolName string, elapsed time.Duration)
}

func NewExecutor(registry *Registry, log *bolt.Logger, maxOutputChars int) *Executor {
	if maxOutputChars <= 0 {
		maxOutputChars = 10000
	}
	return &Executor{
		registry:       registry,
		log:            log,
		maxOutputChars: maxOutputChars,
	}
}

// SetHeartbeat installs a progress callback invoked every 5 seconds while a
// tool call is executing.
func (e *Executor) SetHeartbeat(fn func(toolName string, elapsed time.Duration)) {
	e.heartbeat = fn
}

// SetMaxOutputChars adjusts the truncation cap for subsequent batches.
func (e *Executor) SetMaxOutputChars(n int) {
	if n > 0 {
		e.maxOutputChars = n
	}
}

// ExecuteBatch runs the calls sequentially and returns one CallResult per
// call, preserving input order.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []provider.ToolCall) []CallResult {
	results := make([]CallResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, CallResult{
			Name:     call.Name,
			Response: e.executeOne(ctx, call),
		})
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, call provider.ToolCall) *Result {
	args, notes := normalizeArgs(call.Name, call.Args)
	for _, note := range notes {
		e.log.Info().Str("tool", call.Name).Str("fix", note).Msg("normalized tool arguments")
	}

	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		return e.shape(Failure("tool not found: %s", call.Name))
	}

	stopBeat := e.startHeartbeat(ctx, call.Name)
	defer stopBeat()

	start := time.Now()
	var result *Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = tool.Execute(ctx, args)
		if err == nil {
			break
		}
		if attempt >= executorRetries || ctx.Err() != nil {
			e.log.Warn().Str("tool", call.Name).Int("attempts", attempt+1).Err(err).Msg("tool execution gave up")
			result = Failure("%v", err)
			break
		}
		delay := retryBackoff[attempt]
		e.log.Warn().Str("tool", call.Name).Err(err).Str("retry_in", delay.String()).Msg("tool execution faulted, retrying")
		select {
		case <-ctx.Done():
			result = Failure("cancelled: %v", ctx.Err())
		case <-time.After(delay):
			continue
		}
		break
	}
	if result == nil {
		result = Failure("tool %s returned no result", call.Name)
	}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return e.shape(result)
}

// shape truncates long text output. Results carrying images pass through
// untouched so the payload survives to the provider.
func (e *Executor) shape(result *Result) *Result {
	if len(result.Images) > 0 {
		return result
	}
	if over := len(result.Output) - e.maxOutputChars; over > 0 {
		result.Output = result.Output[:e.maxOutputChars] +
			fmt.Sprintf("… [truncated %d chars]", over)
	}
	return result
}

func (e *Executor) startHeartbeat(ctx context.Context, toolName string) func() {
	if e.heartbeat == nil {
		return func() {}
	}
	done := make(chan struct{})
	started := time.Now()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.heartbeat(toolName, time.Since(started))
			}
		}
	}()
	return func() { close(done) }
}

// EncodeArgs renders tool arguments as compact JSON for logging and
// fingerprinting. Encoding failures degrade to fmt formatting.
func EncodeArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}

// ResponseContent renders a Result for a tool-response message. Images are
// referenced by id only; the model receives them through the image channel.
func ResponseContent(r *Result) string {
	var b strings.Builder
	if r.Success {
		b.WriteString(r.Output)
	} else {
		b.WriteString("ERROR: ")
		b.WriteString(r.Error)
		if r.Output != "" {
			b.WriteString("\n")
			b.WriteString(r.Output)
		}
	}
	for _, img := range r.Images {
		fmt.Fprintf(&b, "\n[image %s attached]", img.ID)
	}
	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n[file ready: %s (%s)]", f.Path, f.MIME)
	}
	return b.String()
}
