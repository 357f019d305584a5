// Package retrieval ranks stored memories against a query embedding by
// cosine similarity plus tier/kind priors, and formats the top results
// into a deterministic Markdown context block.
package retrieval

import (
	"math"
	"sort"

	"github.com/kamino/squirrel/internal/embedder"
	"github.com/kamino/squirrel/pkg/types"
)

// Scored pairs a memory with its raw (unboosted) similarity to the query.
type Scored struct {
	Memory     *types.Memory
	Similarity float64
}

// Query controls a Rank call.
type Query struct {
	TopK          int     // default 10
	MinSimilarity float64 // default 0
}

func (q Query) withDefaults() Query {
	if q.TopK <= 0 {
		q.TopK = 10
	}
	return q
}

var tierBoost = map[types.MemoryTier]float64{
	types.TierEmergency: 0.30,
	types.TierLongTerm:  0.20,
	types.TierShortTerm: 0.00,
}

var kindBoost = map[types.MemoryKind]float64{
	types.KindInvariant:  0.15,
	types.KindPreference: 0.15,
	types.KindPattern:    0.10,
	types.KindGuard:      0.05,
	types.KindNote:       0.00,
}

// Rank scores candidates against queryVec, drops those below
// MinSimilarity, and returns the top TopK sorted by rank_score
// descending (ties broken by more recent CreatedAt). The returned
// Similarity is the raw cosine score, not the boosted rank score.
func Rank(candidates []*types.Memory, queryVec []float32, q Query) ([]Scored, error) {
	q = q.withDefaults()

	type ranked struct {
		scored    Scored
		rankScore float64
	}

	results := make([]ranked, 0, len(candidates))

	for _, mem := range candidates {
		if mem.Embedding == nil {
			continue
		}
		vec, err := embedder.DecodeVector(mem.Embedding)
		if err != nil {
			continue
		}

		sim := cosineSimilarity(queryVec, vec)
		if sim < q.MinSimilarity {
			continue
		}

		rankScore := sim + tierBoost[mem.Tier] + kindBoost[mem.Kind]
		results = append(results, ranked{scored: Scored{Memory: mem, Similarity: sim}, rankScore: rankScore})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].rankScore != results[j].rankScore {
			return results[i].rankScore > results[j].rankScore
		}
		return results[i].scored.Memory.CreatedAt.After(results[j].scored.Memory.CreatedAt)
	})

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}

	out := make([]Scored, len(results))
	for i, r := range results {
		out[i] = r.scored
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
