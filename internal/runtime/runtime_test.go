package runtime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alterlabs/alter/internal/provider"
)

func testLog() *bolt.Logger {
	return bolt.New(bolt.NewConsoleHandler(io.Discard))
}

func TestShutdownCoordinator_ReverseOrder(t *testing.T) {
	c := NewShutdownCoordinator(testLog())
	var order []string
	c.OnShutdown("first", func() error { order = append(order, "first"); return nil })
	c.OnShutdown("second", func() error { order = append(order, "second"); return nil })
	c.OnShutdown("third", func() error { order = append(order, "third"); return nil })

	c.Shutdown()

	if len(order) != 3 || order[0] != "third" || order[2] != "first" {
		t.Errorf("order = %v", order)
	}
}

func TestShutdownCoordinator_FailureIsolation(t *testing.T) {
	c := NewShutdownCoordinator(testLog())
	var ran []string
	c.OnShutdown("a", func() error { ran = append(ran, "a"); return nil })
	c.OnShutdown("b", func() error { return errors.New("boom") })
	c.OnShutdown("c", func() error { panic("worse") })

	c.Shutdown()

	if len(ran) != 1 || ran[0] != "a" {
		t.Errorf("ran = %v; failing hooks must not stop the rest", ran)
	}
}

func TestShutdownCoordinator_IdempotentAndObservable(t *testing.T) {
	c := NewShutdownCoordinator(testLog())
	count := 0
	c.OnShutdown("once", func() error { count++; return nil })

	if c.IsShuttingDown() {
		t.Fatal("shutting down before shutdown")
	}
	c.Shutdown()
	c.Shutdown()

	if count != 1 {
		t.Errorf("hook ran %d times", count)
	}
	if !c.IsShuttingDown() {
		t.Error("flag not set")
	}
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	stub := provider.NewStub()
	rt, err := New(context.Background(), Config{
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
	return rt
}

func TestRuntime_BuildsFullToolset(t *testing.T) {
	rt := newTestRuntime(t)
	for _, name := range []string{"shell", "file", "web", "code", "browser", "memory", "wait"} {
		if _, ok := rt.Registry.Lookup(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestRuntime_ChatConcurrencyCap(t *testing.T) {
	rt := newTestRuntime(t)

	// Saturate the run slots.
	for i := 0; i < maxConcurrentRuns; i++ {
		rt.runs <- struct{}{}
	}
	if _, err := rt.Chat(context.Background(), "s1", "hi", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if rt.ActiveRuns() != maxConcurrentRuns {
		t.Errorf("active = %d", rt.ActiveRuns())
	}

	// Free a slot; a chat goes through and drains to done.
	<-rt.runs
	events, err := rt.Chat(context.Background(), "s1", "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	for range events {
	}
	if rt.ActiveRuns() != maxConcurrentRuns-1 {
		t.Errorf("active after drain = %d", rt.ActiveRuns())
	}
}

func TestRuntime_ChatLeasesDriver(t *testing.T) {
	rt := newTestRuntime(t)
	if rt.Driver.Interrupted() {
		t.Fatal("driver leased before any chat")
	}
	events, err := rt.Chat(context.Background(), "s1", "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	for range events {
	}
	if !rt.Driver.Interrupted() {
		t.Error("chat did not lease the driver")
	}
}
