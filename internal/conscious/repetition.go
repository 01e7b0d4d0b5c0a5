// Package conscious implements the autonomous driver: it reflects, picks
// its own tasks, executes them through the agent loop, and keeps a survival
// ledger that rewards real deliverables.
package conscious

import "regexp"

// Words of three or more letters, Latin or Hangul. Other scripts can swap
// in their own pattern via SetTokenPattern.
var defaultTokenPattern = regexp.MustCompile(`[a-zA-Z\x{AC00}-\x{D7A3}]{3,}`)

const (
	repetitionOverlap   = 0.5
	repetitionPairs     = 2
	repetitionWindow    = 5
	taskOverlapLimit    = 0.4
	synthesisRetries    = 3
	taskAvoidListLength = 20
)

var tokenPattern = defaultTokenPattern

// SetTokenPattern replaces the word tokenizer, for deployments whose task
// descriptions are not Latin or Hangul.
func SetTokenPattern(re *regexp.Regexp) {
	if re != nil {
		tokenPattern = re
	}
}

func tokenize(s string) map[string]bool {
	words := tokenPattern.FindAllString(s, -1)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// overlapRatio is the share of a's tokens that also appear in b.
func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

// IsRepeating reports whether the most recent task description substantially
// overlaps at least two of the earlier ones. Descriptions are ordered most
// recent first; only the first repetitionWindow entries are considered.
func IsRepeating(descriptions []string) bool {
	if len(descriptions) < 2 {
		return false
	}
	if len(descriptions) > repetitionWindow {
		descriptions = descriptions[:repetitionWindow]
	}

	latest := tokenize(descriptions[0])
	hits := 0
	for _, other := range descriptions[1:] {
		if overlapRatio(latest, tokenize(other)) > repetitionOverlap {
			hits++
			if hits >= repetitionPairs {
				return true
			}
		}
	}
	return false
}

// taskOverlaps reports whether a candidate task description overlaps any of
// the recent ones beyond the synthesis limit.
func taskOverlaps(candidate string, recent []string) bool {
	cand := tokenize(candidate)
	for _, r := range recent {
		if overlapRatio(cand, tokenize(r)) >= taskOverlapLimit {
			return true
		}
	}
	return false
}
