// Package runtime owns the process lifecycle: it builds the store, event
// bus, tools, rate limiter, agent loop and consciousness driver, hands them
// to the surfaces, and tears everything down in order on shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alterlabs/alter/internal/agent"
	"github.com/alterlabs/alter/internal/bus"
	"github.com/alterlabs/alter/internal/conscious"
	"github.com/alterlabs/alter/internal/guard"
	"github.com/alterlabs/alter/internal/observe"
	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/store"
	"github.com/alterlabs/alter/internal/tools"
)

// ErrBusy rejects chat requests beyond the concurrent-run cap.
var ErrBusy = errors.New("too many concurrent runs, try again shortly")

const (
	maxConcurrentRuns = 3
	userLeaseDuration = 30 * time.Second

	// Request budget for the model: 30 requests per minute, small burst.
	bucketTokensPerMin = 30
	bucketCapacity     = 10
)

// Config assembles a Runtime.
type Config struct {
	DBPath        string
	Workdir       string
	ScreenshotDir string
	Verbose       bool
	JSONLogs      bool

	ProviderName string // openai, gemini, ollama
	APIKey       string
	BaseURL      string
	Model        string
	SmallModel   string // reflection model for the consciousness driver

	Provider  provider.Provider // overrides ProviderName when set (tests)
	Reflector provider.Provider

	Metrics prometheus.Registerer // nil means the default registerer
}

// Runtime is the top-level handle. Everything that used to be a global
// lives here and is torn down by Close.
type Runtime struct {
	Observer *observe.Observer
	Store    *store.Store
	Bus      *bus.Bus
	Guard    *guard.Guard
	Registry *tools.Registry
	Executor *tools.Executor
	Bucket   *agent.TokenBucket
	Usage    *agent.UsageAccountant
	Loop     *agent.Loop
	Driver   *conscious.Driver
	Shutdown *ShutdownCoordinator

	browser       *tools.BrowserTool
	runs          chan struct{}
	workdir       string
	screenshotDir string
}

// New wires the full runtime. The returned handle must be Closed.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	obs := observe.New(os.Stderr, cfg.Verbose)
	if cfg.JSONLogs {
		obs = observe.NewJSON(os.Stderr, cfg.Verbose)
	}
	log := obs.Log()

	if cfg.Workdir == "" {
		cfg.Workdir = "."
	}
	if err := os.MkdirAll(cfg.Workdir, 0o755); err != nil {
		return nil, fmt.Errorf("workdir: %w", err)
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = filepath.Join(cfg.Workdir, "screenshots")
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	b := bus.New()
	s.SetPublisher(b)

	shutdown := NewShutdownCoordinator(log)
	shutdown.OnShutdown("store", s.Close)
	shutdown.OnShutdown("bus", func() error { b.Close(); return nil })

	g := guard.New(guard.DefaultPolicy(cfg.Workdir))

	toolTimeout := 30 * time.Second
	if ms, err := s.GetConfigInt("tool_timeout_ms"); err == nil {
		toolTimeout = time.Duration(ms) * time.Millisecond
	}
	codeTimeout := time.Minute
	if ms, err := s.GetConfigInt("code_timeout_ms"); err == nil {
		codeTimeout = time.Duration(ms) * time.Millisecond
	}
	maxOutput, err := s.GetConfigInt("max_output_chars")
	if err != nil {
		maxOutput = 10000
	}

	registry := tools.NewRegistry(log)
	browser := tools.NewBrowserTool(g, log, cfg.ScreenshotDir)
	registry.Register(tools.NewShellTool(g, cfg.Workdir, toolTimeout))
	registry.Register(tools.NewFileTool(g, cfg.Workdir))
	registry.Register(tools.NewWebTool(g, toolTimeout))
	registry.Register(tools.NewCodeTool(cfg.Workdir, codeTimeout))
	registry.Register(browser)
	registry.Register(tools.NewMemoryTool(s))
	registry.Register(tools.NewWaitTool())
	shutdown.OnShutdown("browser", browser.Close)

	executor := tools.NewExecutor(registry, log, maxOutput)
	bucket := agent.NewTokenBucket(bucketTokensPerMin, time.Minute, bucketCapacity)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = prometheus.DefaultRegisterer
	}
	usage := agent.NewUsageAccountant(metrics)

	primary := cfg.Provider
	if primary == nil {
		primary, err = buildProvider(ctx, cfg, cfg.Model)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	reflector := cfg.Reflector
	if reflector == nil {
		model := cfg.SmallModel
		if model == "" {
			model = cfg.Model
		}
		reflector, err = buildProvider(ctx, cfg, model)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	loop := agent.NewLoop(agent.LoopConfig{
		Store:        s,
		Provider:     primary,
		Registry:     registry,
		Executor:     executor,
		Bucket:       bucket,
		Usage:        usage,
		Observer:     obs,
		ShuttingDown: shutdown.IsShuttingDown,
	})

	driver := conscious.NewDriver(conscious.DriverConfig{
		Store:        s,
		Loop:         loop,
		Reflector:    reflector,
		Log:          log,
		Workdir:      cfg.Workdir,
		ShuttingDown: shutdown.IsShuttingDown,
	})

	return &Runtime{
		Observer: obs,
		Store:    s,
		Bus:      b,
		Guard:    g,
		Registry: registry,
		Executor: executor,
		Bucket:   bucket,
		Usage:    usage,
		Loop:     loop,
		Driver:   driver,
		Shutdown: shutdown,
		browser:       browser,
		runs:          make(chan struct{}, maxConcurrentRuns),
		workdir:       cfg.Workdir,
		screenshotDir: cfg.ScreenshotDir,
	}, nil
}

func buildProvider(ctx context.Context, cfg Config, model string) (provider.Provider, error) {
	switch cfg.ProviderName {
	case "", "openai":
		return provider.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, model)
	case "gemini":
		return provider.NewGeminiProvider(ctx, cfg.APIKey, model)
	case "ollama":
		return provider.NewOllamaProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.ProviderName)
	}
}

// Chat starts a user agent run, enforcing the concurrency cap and leasing
// the model away from the consciousness driver for a while.
func (r *Runtime) Chat(ctx context.Context, sessionID, message string, images []provider.Image) (<-chan agent.Event, error) {
	select {
	case r.runs <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	r.Driver.Lease(userLeaseDuration)

	events := r.Loop.Run(ctx, message, agent.RunOptions{
		SessionID: sessionID,
		Images:    images,
	})

	out := make(chan agent.Event, 16)
	go func() {
		defer close(out)
		defer func() { <-r.runs }()
		for e := range events {
			out <- e
		}
	}()
	return out, nil
}

// ActiveRuns reports the number of in-flight chat runs.
func (r *Runtime) ActiveRuns() int {
	return len(r.runs)
}

// Workdir is the agent's workspace directory.
func (r *Runtime) Workdir() string {
	return r.workdir
}

// ScreenshotPath resolves a screenshot id to its file path.
func (r *Runtime) ScreenshotPath(id string) string {
	return filepath.Join(r.screenshotDir, id+".jpg")
}

// Close tears the runtime down in reverse construction order.
func (r *Runtime) Close() {
	r.Shutdown.Shutdown()
}
