package episode

import "strings"

// errorPatterns are fixed, case-insensitive substrings that mark a tool
// result as an error.
var errorPatterns = []string{
	"error:",
	"exception:",
	"traceback",
	"failed",
	"errno",
	"permission denied",
	"not found",
	"syntax error",
}

// IsErrorResult reports whether a tool result's raw text indicates an
// error, via fixed substring matching.
func IsErrorResult(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range errorPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
