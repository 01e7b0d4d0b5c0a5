package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/alterlabs/alter/internal/guard"
)

const (
	browserMaxAge      = 30 * time.Minute
	pageIdleTimeout    = 5 * time.Minute
	screenshotMaxAge   = 24 * time.Hour
	screenshotMaxFiles = 100
	janitorInterval    = time.Hour
)

// BrowserTool drives a shared headless browser. The browser and its single
// page are lazily started, recycled by age, and the page is dropped after an
// idle period. All access is serialized.
type BrowserTool struct {
	mu            sync.Mutex
	guard         *guard.Guard
	log           *bolt.Logger
	screenshotDir string

	browser     *rod.Browser
	page        *rod.Page
	startedAt   time.Time
	lastUsed    time.Time
	janitorOnce sync.Once
	janitorStop chan struct{}
}

func NewBrowserTool(g *guard.Guard, log *bolt.Logger, screenshotDir string) *BrowserTool {
	return &BrowserTool{
		guard:         g,
		log:           log,
		screenshotDir: screenshotDir,
		janitorStop:   make(chan struct{}),
	}
}

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Control a headless browser: navigate, screenshot, click, type, evaluate JavaScript, or read page text."
}

func (t *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "One of: navigate, screenshot, click, type, evaluate, content",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "URL for navigate",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for click and type",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Text for type, or JavaScript for evaluate",
			},
		},
		"required": []string{"action"},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, _ := args["action"].(string)
	switch action {
	case "navigate":
		rawURL, _ := args["url"].(string)
		if rawURL == "" {
			return Failure("navigate requires url"), nil
		}
		if v := t.guard.CheckURL(rawURL); v != nil {
			return Failure("%v", v), nil
		}
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		if err := page.Context(ctx).Navigate(rawURL); err != nil {
			return Failure("navigation failed: %v", err), nil
		}
		if err := page.Context(ctx).WaitLoad(); err != nil {
			t.log.Debug().Str("url", rawURL).Err(err).Msg("page load wait ended early")
		}
		return &Result{Success: true, Output: "navigated to " + rawURL}, nil

	case "screenshot":
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatJpeg,
		})
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		id := uuid.NewString()
		if err := os.MkdirAll(t.screenshotDir, 0o755); err != nil {
			return nil, fmt.Errorf("screenshot dir: %w", err)
		}
		path := filepath.Join(t.screenshotDir, id+".jpg")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("save screenshot: %w", err)
		}
		return &Result{
			Success: true,
			Output:  "screenshot saved: " + path,
			Images: []Image{{
				MIME: "image/jpeg",
				Data: base64.StdEncoding.EncodeToString(data),
				ID:   id,
			}},
		}, nil

	case "click":
		selector, _ := args["selector"].(string)
		if selector == "" {
			return Failure("click requires selector"), nil
		}
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		el, err := page.Context(ctx).Element(selector)
		if err != nil {
			return Failure("element not found: %s", selector), nil
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return Failure("click failed: %v", err), nil
		}
		return &Result{Success: true, Output: "clicked " + selector}, nil

	case "type":
		selector, _ := args["selector"].(string)
		text, _ := args["content"].(string)
		if selector == "" {
			return Failure("type requires selector"), nil
		}
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		el, err := page.Context(ctx).Element(selector)
		if err != nil {
			return Failure("element not found: %s", selector), nil
		}
		if err := el.Input(text); err != nil {
			return Failure("type failed: %v", err), nil
		}
		return &Result{Success: true, Output: fmt.Sprintf("typed %d chars into %s", len(text), selector)}, nil

	case "evaluate":
		js, _ := args["content"].(string)
		if js == "" {
			return Failure("evaluate requires content (javascript)"), nil
		}
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		res, err := page.Context(ctx).Eval(js)
		if err != nil {
			return Failure("evaluate failed: %v", err), nil
		}
		out := ""
		if res != nil && !res.Value.Nil() {
			out = res.Value.String()
		}
		return &Result{Success: true, Output: out}, nil

	case "content":
		page, err := t.currentPage(ctx)
		if err != nil {
			return nil, err
		}
		res, err := page.Context(ctx).Eval(`() => document.body.innerText`)
		if err != nil {
			return Failure("content extraction failed: %v", err), nil
		}
		out := ""
		if res != nil && !res.Value.Nil() {
			out = res.Value.String()
		}
		return &Result{Success: true, Output: out}, nil

	default:
		return Failure("unknown action: %s", action), nil
	}
}

// currentPage returns the singleton page, starting or recycling the browser
// as needed. Caller must hold the mutex.
func (t *BrowserTool) currentPage(ctx context.Context) (*rod.Page, error) {
	now := time.Now()

	if t.browser != nil && now.Sub(t.startedAt) > browserMaxAge {
		t.log.Info().Str("age", now.Sub(t.startedAt).String()).Msg("recycling aged browser")
		t.closeLocked()
	}
	if t.page != nil && now.Sub(t.lastUsed) > pageIdleTimeout {
		_ = t.page.Close()
		t.page = nil
	}

	if t.browser == nil {
		controlURL, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			return nil, fmt.Errorf("connect browser: %w", err)
		}
		t.browser = browser
		t.startedAt = now
		t.janitorOnce.Do(func() { go t.janitor() })
	}

	if t.page == nil {
		page, err := t.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		t.page = page
	}
	t.lastUsed = now
	return t.page, nil
}

// Close shuts the browser down and stops the janitor.
func (t *BrowserTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.janitorStop:
	default:
		close(t.janitorStop)
	}
	t.closeLocked()
	return nil
}

func (t *BrowserTool) closeLocked() {
	if t.page != nil {
		_ = t.page.Close()
		t.page = nil
	}
	if t.browser != nil {
		_ = t.browser.Close()
		t.browser = nil
	}
}

// janitor periodically deletes old screenshots and trims the directory to
// its file cap.
func (t *BrowserTool) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.janitorStop:
			return
		case <-ticker.C:
			if n := CleanScreenshots(t.screenshotDir, screenshotMaxAge, screenshotMaxFiles); n > 0 {
				t.log.Info().Int("removed", n).Msg("cleaned old screenshots")
			}
		}
	}
}

// CleanScreenshots removes entries older than maxAge and trims the newest
// maxFiles survivors. Returns the number of files removed.
func CleanScreenshots(dir string, maxAge time.Duration, maxFiles int) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	type fileAge struct {
		path string
		mod  time.Time
	}
	var files []fileAge
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
			continue
		}
		files = append(files, fileAge{path: path, mod: info.ModTime()})
	}

	if len(files) > maxFiles {
		sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
		for _, f := range files[maxFiles:] {
			if os.Remove(f.path) == nil {
				removed++
			}
		}
	}
	return removed
}
