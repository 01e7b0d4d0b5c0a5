package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alterlabs/alter/internal/provider"
	"github.com/alterlabs/alter/internal/runtime"
)

func newTestServer(t *testing.T, stub *provider.Stub) *Server {
	t.Helper()
	rt, err := runtime.New(context.Background(), runtime.Config{
		DBPath:    ":memory:",
		Workdir:   t.TempDir(),
		Provider:  stub,
		Reflector: stub,
		Metrics:   prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(rt.Close)
	return New(rt)
}

func TestChat_StreamsEvents(t *testing.T) {
	stub := provider.NewStub(provider.Response{Text: "hello from the agent"})
	srv := newTestServer(t, stub)

	body := strings.NewReader(`{"session_id":"s1","message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %s", ct)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event: text") || !strings.Contains(out, "event: done") {
		t.Errorf("stream = %q", out)
	}
	if !strings.Contains(out, "hello from the agent") {
		t.Errorf("stream missing model text: %q", out)
	}
}

func TestChat_RequiresMessage(t *testing.T) {
	srv := newTestServer(t, provider.NewStub())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStream_UnknownStreamRejected(t *testing.T) {
	srv := newTestServer(t, provider.NewStub())

	req := httptest.NewRequest(http.MethodGet, "/api/stream/nonsense", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestScreenshot_InvalidIDRejected(t *testing.T) {
	srv := newTestServer(t, provider.NewStub())

	req := httptest.NewRequest(http.MethodGet, "/api/screenshots/..%2Fsecret", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, provider.NewStub())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.ActiveRuns != 0 || status.DriverRunning {
		t.Errorf("status = %+v", status)
	}
}

func TestTimeline(t *testing.T) {
	srv := newTestServer(t, provider.NewStub())

	if _, err := srv.rt.Store.AddThought("first idea", "first idea", "reflection"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/timeline", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "first idea") {
		t.Errorf("timeline = %s", rec.Body.String())
	}
}
