package episode

import (
	"strings"

	"github.com/kamino/squirrel/pkg/types"
)

const errorPrefixLen = 50

// DetectRetryLoops counts error events whose normalized prefix resembles
// one of the preceding (up to 5) error events, signaling a repeated
// failed attempt at the same task.
func DetectRetryLoops(events []types.Event) int {
	retryCount := 0
	var recentErrors []string

	for _, e := range events {
		if !e.IsError || e.Summary == "" {
			continue
		}

		key := normalizePrefix(e.Summary)

		start := 0
		if len(recentErrors) > 5 {
			start = len(recentErrors) - 5
		}
		for _, prev := range recentErrors[start:] {
			if similarErrors(key, prev) {
				retryCount++
				break
			}
		}

		recentErrors = append(recentErrors, key)
	}

	return retryCount
}

func normalizePrefix(s string) string {
	lower := strings.ToLower(s)
	if len(lower) > errorPrefixLen {
		lower = lower[:errorPrefixLen]
	}
	return lower
}

// similarErrors reports whether two normalized error strings share at
// least 30% of their whitespace-tokenized words, relative to the smaller
// word set.
func similarErrors(a, b string) bool {
	words1 := wordSet(a)
	words2 := wordSet(b)
	if len(words1) == 0 || len(words2) == 0 {
		return false
	}

	common := 0
	smaller, larger := words1, words2
	if len(words2) < len(words1) {
		smaller, larger = words2, words1
	}
	for w := range smaller {
		if larger[w] {
			common++
		}
	}

	return float64(common)/float64(len(smaller)) >= 0.3
}

func wordSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
