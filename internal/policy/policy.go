// Package policy implements the CR-Memory evaluator: a pure, deterministic
// function mapping (Memory, MemoryMetrics, now) to a Decision, plus the
// layered TOML policy configuration it reads its rule tables from.
package policy

import "github.com/kamino/squirrel/pkg/types"

// PromotionRule governs when a memory should be promoted to active.
type PromotionRule struct {
	MinOpportunities int
	MinUseRatio      float64
	MinRegretHits    int
}

// DeprecationRule governs when a memory should be deprecated for low use.
type DeprecationRule struct {
	MinOpportunities int
	MaxUseRatio      float64
}

// DecayRule governs time-based deprecation. A nil MaxInactiveDays disables
// decay entirely for the kind.
type DecayRule struct {
	MaxInactiveDays *int
}

// RegretWeights weight observed errors/retries into a regret score.
type RegretWeights struct {
	AlphaErrors float64
	BetaRetries float64
}

// TTLDefaults are the global TTL knobs.
type TTLDefaults struct {
	ShortTermDays         int
	EmergencyDays         int
	ExtendOnPromotionDays int
	RemoveOnLongTerm      bool
}

// Policy is the full, resolved rule set the evaluator consults. Construct
// via DefaultPolicy or LoadPolicy; do not mutate after load (policy and
// configuration are loaded once at startup and treated as immutable).
type Policy struct {
	PromotionDefault  PromotionRule
	PromotionInvariant PromotionRule
	PromotionGuard    PromotionRule

	DeprecationDefault DeprecationRule
	DeprecationGuard   DeprecationRule
	DeprecationNote    DeprecationRule

	DecayGuard      DecayRule
	DecayPattern    DecayRule
	DecayNote       DecayRule
	DecayPreference DecayRule
	DecayInvariant  DecayRule

	RegretWeights RegretWeights
	TTL           TTLDefaults
}

func days(n int) *int { return &n }

// DefaultPolicy is the built-in rule table from the spec's defaults table.
func DefaultPolicy() Policy {
	return Policy{
		PromotionDefault:  PromotionRule{MinOpportunities: 5, MinUseRatio: 0.60, MinRegretHits: 2},
		PromotionInvariant: PromotionRule{MinOpportunities: 3, MinUseRatio: 0.50, MinRegretHits: 1},
		PromotionGuard:    PromotionRule{MinOpportunities: 10, MinUseRatio: 0.30, MinRegretHits: 3},

		DeprecationDefault: DeprecationRule{MinOpportunities: 10, MaxUseRatio: 0.10},
		DeprecationGuard:   DeprecationRule{MinOpportunities: 20, MaxUseRatio: 0.05},
		DeprecationNote:    DeprecationRule{MinOpportunities: 5, MaxUseRatio: 0.20},

		DecayGuard:      DecayRule{MaxInactiveDays: days(90)},
		DecayPattern:    DecayRule{MaxInactiveDays: days(180)},
		DecayNote:       DecayRule{MaxInactiveDays: days(60)},
		DecayPreference: DecayRule{MaxInactiveDays: days(365)},
		DecayInvariant:  DecayRule{MaxInactiveDays: nil},

		RegretWeights: RegretWeights{AlphaErrors: 1.0, BetaRetries: 0.5},
		TTL: TTLDefaults{
			ShortTermDays:         30,
			EmergencyDays:         7,
			ExtendOnPromotionDays: 180,
			RemoveOnLongTerm:      true,
		},
	}
}

// GetPromotionRule returns the per-kind promotion rule, falling back to
// the default.
func (p Policy) GetPromotionRule(kind types.MemoryKind) PromotionRule {
	switch kind {
	case types.KindInvariant:
		return p.PromotionInvariant
	case types.KindGuard:
		return p.PromotionGuard
	default:
		return p.PromotionDefault
	}
}

// GetDeprecationRule returns the per-kind deprecation rule, falling back
// to the default.
func (p Policy) GetDeprecationRule(kind types.MemoryKind) DeprecationRule {
	switch kind {
	case types.KindGuard:
		return p.DeprecationGuard
	case types.KindNote:
		return p.DeprecationNote
	default:
		return p.DeprecationDefault
	}
}

// GetDecayRule returns the per-kind decay rule. Every known kind has an
// entry; a rule with nil MaxInactiveDays (invariant, by default) never
// decays. ok is false only for a kind outside the known set.
func (p Policy) GetDecayRule(kind types.MemoryKind) (DecayRule, bool) {
	switch kind {
	case types.KindGuard:
		return p.DecayGuard, true
	case types.KindPattern:
		return p.DecayPattern, true
	case types.KindNote:
		return p.DecayNote, true
	case types.KindPreference:
		return p.DecayPreference, true
	case types.KindInvariant:
		return p.DecayInvariant, true
	default:
		return DecayRule{}, false
	}
}

// UpdateRegret computes the regret delta for a cycle's observed errors and
// retries, per POLICY-004's weighting. Used by callers after evaluation;
// not invoked from inside Evaluate itself.
func (p Policy) UpdateRegret(deltaErrors, deltaRetries int) float64 {
	if deltaErrors < 0 {
		deltaErrors = 0
	}
	if deltaRetries < 0 {
		deltaRetries = 0
	}
	return p.RegretWeights.AlphaErrors*float64(deltaErrors) + p.RegretWeights.BetaRetries*float64(deltaRetries)
}
