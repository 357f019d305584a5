package episode

import (
	"regexp"
	"strings"

	"github.com/kamino/squirrel/pkg/types"
)

var profanityTokens = []string{
	"fuck", "shit", "damn it", "goddamn",
}

var moderateTokens = []string{
	"finally", "ugh",
}

var moderatePhrases = regexp.MustCompile(`(?i)why (won't|doesn't|isn't|can't)|still (not|doesn't|won't)`)

var mildTokens = []string{
	"hmm", "hm",
}

var consecutiveExclaim = regexp.MustCompile(`!!+`)
var consecutiveQuestion = regexp.MustCompile(`\?\?+`)

// DetectFrustration classifies a single user message. Rules are evaluated
// severe, moderate, mild in that order; the first match wins.
func DetectFrustration(message string) types.Frustration {
	lower := strings.ToLower(message)

	if containsAny(lower, profanityTokens) || consecutiveExclaim.MatchString(message) {
		return types.FrustrationSevere
	}

	if containsAny(lower, moderateTokens) || moderatePhrases.MatchString(lower) {
		return types.FrustrationModerate
	}

	if containsAny(lower, mildTokens) || consecutiveQuestion.MatchString(message) {
		return types.FrustrationMild
	}

	return types.FrustrationNone
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
