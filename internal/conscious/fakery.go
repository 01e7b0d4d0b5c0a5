package conscious

import "strings"

// Phrases that betray pretend work instead of real output.
var fakeryDictionary = []string{
	"for example",
	"as an example",
	"placeholder",
	"lorem ipsum",
	"mock data",
	"mocked",
	"dummy data",
	"sample output",
	"hypothetical",
	"would look like",
	"pretend",
	"simulated result",
	"imaginary",
	"todo: implement",
}

const fakeryWindow = 3

// IsFaking reports whether any of the most recent thoughts reads like
// fabricated output. Thoughts are ordered most recent first.
func IsFaking(thoughts []string) bool {
	if len(thoughts) > fakeryWindow {
		thoughts = thoughts[:fakeryWindow]
	}
	for _, thought := range thoughts {
		lower := strings.ToLower(thought)
		for _, marker := range fakeryDictionary {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
