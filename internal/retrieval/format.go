package retrieval

import (
	"fmt"
	"strings"

	"github.com/kamino/squirrel/pkg/types"
)

// kindOrder is the fixed grouping order for the context formatter, guard
// first since it surfaces warnings.
var kindOrder = []types.MemoryKind{
	types.KindGuard,
	types.KindInvariant,
	types.KindPreference,
	types.KindPattern,
	types.KindNote,
}

// tokensPerWord is the rough estimator: 1.3 tokens per whitespace word.
const tokensPerWord = 1.3

// FormatContext renders scored results as a deterministic Markdown block
// grouped by kind, truncating word-wise to fit tokenBudget B if the
// estimated token count exceeds it.
func FormatContext(results []Scored, tokenBudget int) (text string, usedMemoryIDs []string) {
	if len(results) == 0 {
		return "", nil
	}

	byKind := make(map[types.MemoryKind][]Scored)
	for _, r := range results {
		byKind[r.Memory.Kind] = append(byKind[r.Memory.Kind], r)
	}

	var b strings.Builder
	b.WriteString("## Relevant Memories\n\n")

	for _, kind := range kindOrder {
		group, ok := byKind[kind]
		if !ok {
			continue
		}

		b.WriteString(fmt.Sprintf("### %ss\n\n", strings.Title(string(kind))))
		for _, r := range group {
			prefix := ""
			if kind == types.KindGuard && r.Memory.Polarity == types.PolarityNegative {
				prefix = "⚠️ "
			}
			b.WriteString(fmt.Sprintf("- %s%s\n", prefix, r.Memory.Text))
			usedMemoryIDs = append(usedMemoryIDs, r.Memory.ID)
		}
		b.WriteString("\n")
	}

	rendered := strings.TrimRight(b.String(), "\n") + "\n"
	return truncateToTokenBudget(rendered, tokenBudget), usedMemoryIDs
}

func truncateToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return text
	}

	words := strings.Fields(text)
	estimatedTokens := float64(len(words)) * tokensPerWord
	if estimatedTokens <= float64(budget) {
		return text
	}

	maxWords := int(float64(budget) / tokensPerWord)
	if maxWords >= len(words) {
		return text
	}
	if maxWords < 0 {
		maxWords = 0
	}

	return strings.Join(words[:maxWords], " ") + "..."
}
