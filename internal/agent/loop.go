package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/alterlabs/alter/internal/observe"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/store"
	"github.com/alterlabs/alter/internal/tools"
)

// ErrStuck terminates a run when the stuck detector demands it.
var ErrStuck = errors.New("agent is stuck")

const (
	llmRetries      = 3
	llmBaseBackoff  = time.Second
	resultStoreCap  = 2000 // final text stored on the task row
	tokensPerCall   = 1    // bucket currency is requests, not tokens
	defaultMaxIters = 100
)

// Loop is the agent run engine. One Loop serves many runs; per-run state
// lives on the stack of Run's goroutine.
type Loop struct {
	store     *store.Store
	provider  provider.Provider
	registry  *tools.Registry
	executor  *tools.Executor
	assembler *ContextAssembler
	bucket    *TokenBucket
	usage     *UsageAccountant
	obs       *observe.Observer
	log       *bolt.Logger

	// shuttingDown lets runs exit cooperatively on global shutdown.
	shuttingDown func() bool
}

type LoopConfig struct {
	Store        *store.Store
	Provider     provider.Provider
	Registry     *tools.Registry
	Executor     *tools.Executor
	Bucket       *TokenBucket
	Usage        *UsageAccountant
	Observer     *observe.Observer
	ShuttingDown func() bool
}

func NewLoop(cfg LoopConfig) *Loop {
	l := &Loop{
		store:        cfg.Store,
		provider:     cfg.Provider,
		registry:     cfg.Registry,
		executor:     cfg.Executor,
		assembler:    NewContextAssembler(cfg.Store, cfg.Registry),
		bucket:       cfg.Bucket,
		usage:        cfg.Usage,
		obs:          cfg.Observer,
		log:          cfg.Observer.Log(),
		shuttingDown: cfg.ShuttingDown,
	}
	if l.shuttingDown == nil {
		l.shuttingDown = func() bool { return false }
	}
	return l
}

// RunOptions configure a single run.
type RunOptions struct {
	SessionID     string
	Images        []provider.Image
	MaxIterations int // 0 means the configured default
}

// Run starts an agent run and returns its event stream. The channel closes
// after the terminal event. Cancel the context to abort the run.
func (l *Loop) Run(ctx context.Context, userMessage string, opts RunOptions) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		l.run(ctx, userMessage, opts, events)
	}()
	return events
}

func (l *Loop) run(ctx context.Context, userMessage string, opts RunOptions, events chan<- Event) {
	ctx, span := l.obs.StartSpan(ctx, "agent.run")
	defer span.End()

	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}
	// emitFinal delivers terminal events even after cancellation. The send
	// never blocks: the channel buffer has room unless the consumer abandoned
	// more than a full buffer of events, and the stream must always end with
	// done or error.
	emitFinal := func(e Event) {
		select {
		case events <- e:
		default:
		}
	}

	task, err := l.store.CreateTask(opts.SessionID, userMessage)
	if err != nil {
		emitFinal(Event{Kind: EventError, Text: "cannot create task: " + err.Error()})
		return
	}

	fail := func(reason string) {
		if err := l.store.FinishTask(task.ID, store.TaskFailed, reason); err != nil {
			l.log.Warn().Str("task", task.ID).Err(err).Msg("cannot record task failure")
		}
	}

	maxIters := opts.MaxIterations
	if maxIters <= 0 {
		if v, err := l.store.GetConfigInt("max_iterations"); err == nil {
			maxIters = v
		} else {
			maxIters = defaultMaxIters
		}
	}
	temperature, _ := l.store.GetConfigFloat("temperature")
	thinkingBudget, _ := l.store.GetConfigInt("thinking_budget")

	detector := NewStuckDetector(maxIters)
	systemPrompt := l.assembler.Assemble(userMessage, opts.SessionID)

	messages := l.loadHistory(opts.SessionID)
	messages = append(messages, provider.Message{
		Role:    "user",
		Content: userMessage,
		Images:  opts.Images,
	})

	for {
		if ctx.Err() != nil || l.shuttingDown() {
			reason := "cancelled"
			if l.shuttingDown() {
				reason = "shutdown requested"
			}
			fail(reason)
			emitFinal(Event{Kind: EventDone, Text: "stopped: " + reason})
			return
		}

		if _, err := l.store.IncrementTaskIteration(task.ID); err != nil {
			l.log.Warn().Str("task", task.ID).Err(err).Msg("cannot bump iteration")
		}

		resp, err := l.chat(ctx, &provider.Request{
			Messages:       messages,
			Tools:          l.registry.List(),
			SystemPrompt:   systemPrompt,
			Temperature:    temperature,
			ThinkingBudget: thinkingBudget,
		})
		if err != nil {
			fail(err.Error())
			emitFinal(Event{Kind: EventError, Text: err.Error()})
			return
		}

		if resp.Thinking != "" {
			emit(Event{Kind: EventThinking, Text: resp.Thinking})
		}
		if resp.Text != "" {
			emit(Event{Kind: EventText, Text: resp.Text})
		}

		if len(resp.ToolCalls) == 0 {
			final := resp.Text
			if err := l.store.FinishTask(task.ID, store.TaskCompleted, prefix(final, resultStoreCap)); err != nil {
				l.log.Warn().Str("task", task.ID).Err(err).Msg("cannot complete task")
			}
			l.appendTurns(opts.SessionID, userMessage, final)
			emitFinal(Event{Kind: EventDone, Text: final})
			return
		}

		// Record the model's tool-call turn before executing it.
		messages = append(messages, provider.Message{
			Role:      "model",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			detector.Record(call.Name, tools.EncodeArgs(call.Args))
			emit(Event{Kind: EventToolCall, ToolName: call.Name, ToolArgs: call.Args})
		}

		results := l.executor.ExecuteBatch(ctx, resp.ToolCalls)

		var responses []provider.ToolResponse
		for i, r := range results {
			emit(Event{Kind: EventToolResult, ToolName: r.Name, Result: r.Response})

			call := resp.ToolCalls[i]
			if err := l.store.LogToolCall(task.ID, r.Name, tools.EncodeArgs(call.Args),
				r.Response.Output, r.Response.Success, r.Response.ExecutionTimeMS); err != nil {
				l.log.Warn().Str("tool", r.Name).Err(err).Msg("cannot log tool call")
			}
			responses = append(responses, provider.ToolResponse{
				ID:      call.ID,
				Name:    r.Name,
				Content: tools.ResponseContent(r.Response),
			})
		}
		messages = append(messages, provider.Message{
			Role:          "user",
			ToolResponses: responses,
		})

		verdict := detector.Check()
		if verdict.ShouldTerminate {
			if err := l.store.FinishTask(task.ID, store.TaskStuck, verdict.Message); err != nil {
				l.log.Warn().Str("task", task.ID).Err(err).Msg("cannot mark task stuck")
			}
			emit(Event{Kind: EventStuckWarning, Text: verdict.Message})
			emitFinal(Event{Kind: EventError, Text: ErrStuck.Error() + ": " + verdict.Message})
			return
		}
		if verdict.IsStuck {
			emit(Event{Kind: EventStuckWarning, Text: verdict.Message})
			messages = append(messages, provider.Message{
				Role:    "user",
				Content: "System warning: " + verdict.Message,
			})
		}
	}
}

// chat gates the model call through the token bucket and retries retryable
// failures with capped exponential backoff plus jitter.
func (l *Loop) chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= llmRetries; attempt++ {
		if err := l.bucket.Acquire(ctx, tokensPerCall); err != nil {
			return nil, err
		}

		resp, err := l.provider.Chat(ctx, req)
		if err == nil {
			l.usage.RecordRequest(l.provider.Name(), resp.Usage.InputTokens+resp.Usage.OutputTokens, false)
			return resp, nil
		}
		l.usage.RecordRequest(l.provider.Name(), 0, true)
		lastErr = err

		if !provider.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		delay := llmBaseBackoff << attempt
		var rl *provider.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		delay += time.Duration(rand.Int63n(int64(delay) / 4))
		l.log.Warn().Err(err).Str("retry_in", delay.String()).Msg("model call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("model call failed after %d attempts: %w", llmRetries+1, lastErr)
}

func (l *Loop) loadHistory(sessionID string) []provider.Message {
	rows, err := l.store.ConversationHistory(sessionID)
	if err != nil {
		l.log.Warn().Str("session", sessionID).Err(err).Msg("cannot load history")
		return nil
	}
	messages := make([]provider.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, provider.Message{Role: row.Role, Content: row.Content})
	}
	return messages
}

func (l *Loop) appendTurns(sessionID, userMessage, modelText string) {
	if err := l.store.AppendConversation(sessionID, "user", userMessage); err != nil {
		l.log.Warn().Err(err).Msg("cannot append user turn")
	}
	if err := l.store.AppendConversation(sessionID, "model", modelText); err != nil {
		l.log.Warn().Err(err).Msg("cannot append model turn")
	}
}
