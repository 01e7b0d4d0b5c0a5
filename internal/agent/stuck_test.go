package agent

import (
	"fmt"
	"testing"
)

func TestStuckDetector_SameInputThreeTimes(t *testing.T) {
	d := NewStuckDetector(100)
	d.Record("shell", `{"command":"ls"}`)
	d.Record("shell", `{"command":"ls"}`)
	if v := d.Check(); v.IsStuck {
		t.Fatal("stuck after only 2 identical records")
	}
	d.Record("shell", `{"command":"ls"}`)

	v := d.Check()
	if !v.IsStuck || v.ShouldTerminate {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestStuckDetector_SameToolTenTimes(t *testing.T) {
	d := NewStuckDetector(100)
	for i := 0; i < 10; i++ {
		d.Record("web", fmt.Sprintf(`{"url":"https://example.com/%d"}`, i))
	}
	v := d.Check()
	if !v.IsStuck || v.ShouldTerminate {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestStuckDetector_VariedCallsNotStuck(t *testing.T) {
	d := NewStuckDetector(100)
	names := []string{"shell", "file", "web", "shell", "memory"}
	for i, name := range names {
		d.Record(name, fmt.Sprintf("input-%d", i))
	}
	if v := d.Check(); v.IsStuck {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestStuckDetector_MaxIterationsTerminates(t *testing.T) {
	d := NewStuckDetector(4)
	inputs := []string{"a", "b", "c", "d"}
	for _, in := range inputs {
		d.Record("shell", in)
	}
	v := d.Check()
	if !v.IsStuck || !v.ShouldTerminate {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestStuckDetector_ClampsMaxIterations(t *testing.T) {
	d := NewStuckDetector(0)
	d.Record("shell", "x")
	if v := d.Check(); !v.ShouldTerminate {
		t.Error("max of 0 should clamp to 1 and terminate after one record")
	}

	d = NewStuckDetector(5000)
	if d.maxIterations != 1000 {
		t.Errorf("maxIterations = %d", d.maxIterations)
	}
}

func TestStuckDetector_HistoryIsBounded(t *testing.T) {
	d := NewStuckDetector(1000)
	for i := 0; i < 200; i++ {
		d.Record("shell", fmt.Sprint(i))
	}
	if len(d.history) > stuckHistorySize {
		t.Errorf("history grew to %d", len(d.history))
	}
	if d.Iteration() != 200 {
		t.Errorf("iteration = %d", d.Iteration())
	}
}
