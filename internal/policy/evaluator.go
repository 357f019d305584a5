package policy

import (
	"fmt"
	"time"

	"github.com/kamino/squirrel/pkg/types"
)

// Evaluator wraps a Policy; Evaluate itself remains pure (no storage
// handle, no clock, no logger — now is an explicit parameter).
type Evaluator struct {
	Policy Policy
}

// NewEvaluator constructs an Evaluator bound to a resolved Policy.
func NewEvaluator(p Policy) *Evaluator {
	return &Evaluator{Policy: p}
}

// daysSince returns the number of whole days between t and now, or nil if
// t is nil.
func daysSince(t *time.Time, now time.Time) *int {
	if t == nil {
		return nil
	}
	d := int(now.Sub(*t).Hours() / 24)
	return &d
}

// Evaluate is the CR-Memory decision algorithm, evaluated top-down: the
// first rule that fires wins. It has no side effects; callers apply the
// returned Decision via the commit layer.
func (e *Evaluator) Evaluate(memory types.Memory, metrics types.MemoryMetrics, now time.Time) types.Decision {
	if memory.Status == types.StatusDeprecated {
		return types.Decision{MemoryID: memory.ID, Result: types.EvalNoChange, Reason: "already deprecated"}
	}

	opp := metrics.Opportunities
	hits := metrics.SuspectedRegretHits

	promo := e.Policy.GetPromotionRule(memory.Kind)
	deprec := e.Policy.GetDeprecationRule(memory.Kind)
	decay, hasDecay := e.Policy.GetDecayRule(memory.Kind)

	if opp < promo.MinOpportunities {
		if hasDecay && decay.MaxInactiveDays != nil {
			if inactive := daysSince(metrics.LastUsedAt, now); inactive != nil && *inactive > *decay.MaxInactiveDays {
				return types.Decision{
					MemoryID:  memory.ID,
					Result:    types.EvalDeprecate,
					NewStatus: types.StatusDeprecated,
					Reason:    fmt.Sprintf("inactive %d days (max %d)", *inactive, *decay.MaxInactiveDays),
				}
			}
		}
		return types.Decision{
			MemoryID: memory.ID,
			Result:   types.EvalNoChange,
			Reason:   fmt.Sprintf("not enough opportunities (%d < %d)", opp, promo.MinOpportunities),
		}
	}

	useRatio := metrics.UseRatio()

	if useRatio >= promo.MinUseRatio && hits >= promo.MinRegretHits {
		newTier := memory.Tier
		newExpires := memory.ExpiresAt

		if memory.Status == types.StatusProvisional && useRatio >= 0.80 {
			newTier = types.TierLongTerm
			if e.Policy.TTL.RemoveOnLongTerm {
				newExpires = nil
			}
		} else if memory.ExpiresAt != nil {
			extended := now.Add(time.Duration(e.Policy.TTL.ExtendOnPromotionDays) * 24 * time.Hour)
			newExpires = &extended
		}

		return types.Decision{
			MemoryID:  memory.ID,
			Result:    types.EvalPromote,
			NewStatus: types.StatusActive,
			NewTier:   newTier,
			ExpiresAt: newExpires,
			Reason:    fmt.Sprintf("use_ratio=%.2f >= %.2f, hits=%d >= %d", useRatio, promo.MinUseRatio, hits, promo.MinRegretHits),
		}
	}

	if opp >= deprec.MinOpportunities && useRatio <= deprec.MaxUseRatio {
		return types.Decision{
			MemoryID:  memory.ID,
			Result:    types.EvalDeprecate,
			NewStatus: types.StatusDeprecated,
			Reason:    fmt.Sprintf("use_ratio=%.2f <= %.2f, opp=%d >= %d", useRatio, deprec.MaxUseRatio, opp, deprec.MinOpportunities),
		}
	}

	if hasDecay && decay.MaxInactiveDays != nil {
		if inactive := daysSince(metrics.LastUsedAt, now); inactive != nil && *inactive > *decay.MaxInactiveDays {
			return types.Decision{
				MemoryID:  memory.ID,
				Result:    types.EvalDeprecate,
				NewStatus: types.StatusDeprecated,
				Reason:    fmt.Sprintf("inactive %d days (max %d)", *inactive, *decay.MaxInactiveDays),
			}
		}
	}

	return types.Decision{
		MemoryID: memory.ID,
		Result:   types.EvalNoChange,
		Reason:   fmt.Sprintf("no change: use_ratio=%.2f, opp=%d, hits=%d", useRatio, opp, hits),
	}
}

// EvaluateBatch evaluates each (memory, metrics) pair independently.
func (e *Evaluator) EvaluateBatch(pairs []struct {
	Memory  types.Memory
	Metrics types.MemoryMetrics
}, now time.Time) []types.Decision {
	decisions := make([]types.Decision, 0, len(pairs))
	for _, p := range pairs {
		decisions = append(decisions, e.Evaluate(p.Memory, p.Metrics, now))
	}
	return decisions
}
