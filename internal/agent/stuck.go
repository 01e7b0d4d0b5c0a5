package agent

import (
	"fmt"
	"hash/fnv"
)

const (
	sameInputThreshold  = 3
	singleToolThreshold = 10
	stuckHistorySize    = 32
)

type stuckRecord struct {
	tool        string
	fingerprint uint64
}

// StuckDetector watches tool-call history for loops: the same call repeated
// verbatim, one tool hammered regardless of input, or the iteration cap.
type StuckDetector struct {
	history       []stuckRecord
	iteration     int
	maxIterations int
}

// Verdict is the outcome of a stuck check. ShouldTerminate implies IsStuck.
type Verdict struct {
	IsStuck         bool
	ShouldTerminate bool
	Message         string
}

func NewStuckDetector(maxIterations int) *StuckDetector {
	if maxIterations < 1 {
		maxIterations = 1
	}
	if maxIterations > 1000 {
		maxIterations = 1000
	}
	return &StuckDetector{maxIterations: maxIterations}
}

// Record notes one tool call. The input string is hashed; only equality
// matters.
func (d *StuckDetector) Record(toolName, input string) {
	d.iteration++
	h := fnv.New64a()
	h.Write([]byte(input))
	d.history = append(d.history, stuckRecord{tool: toolName, fingerprint: h.Sum64()})
	if len(d.history) > stuckHistorySize {
		d.history = d.history[len(d.history)-stuckHistorySize:]
	}
}

// Iteration returns the monotonic call counter.
func (d *StuckDetector) Iteration() int {
	return d.iteration
}

// Check evaluates the rules in priority order.
func (d *StuckDetector) Check() Verdict {
	if d.iteration >= d.maxIterations {
		return Verdict{
			IsStuck:         true,
			ShouldTerminate: true,
			Message:         fmt.Sprintf("reached max %d iterations", d.maxIterations),
		}
	}

	if len(d.history) >= sameInputThreshold {
		tail := d.history[len(d.history)-sameInputThreshold:]
		same := true
		for _, r := range tail[1:] {
			if r.tool != tail[0].tool || r.fingerprint != tail[0].fingerprint {
				same = false
				break
			}
		}
		if same {
			return Verdict{
				IsStuck: true,
				Message: fmt.Sprintf("called %s with the same input %d times, change approach", tail[0].tool, sameInputThreshold),
			}
		}
	}

	if len(d.history) >= singleToolThreshold {
		tail := d.history[len(d.history)-singleToolThreshold:]
		same := true
		for _, r := range tail[1:] {
			if r.tool != tail[0].tool {
				same = false
				break
			}
		}
		if same {
			return Verdict{
				IsStuck: true,
				Message: fmt.Sprintf("used %s %d times in a row, try another tool", tail[0].tool, singleToolThreshold),
			}
		}
	}

	return Verdict{}
}
