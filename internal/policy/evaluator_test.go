package policy

import (
	"testing"
	"time"

	"github.com/kamino/squirrel/pkg/types"
)

func baseMemory(kind types.MemoryKind, status types.MemoryStatus) types.Memory {
	return types.Memory{
		ID:     "mem-1",
		Kind:   kind,
		Tier:   types.TierShortTerm,
		Status: status,
	}
}

func TestEvaluatePromotesToLongTermWhenUseRatioHigh(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindPattern, types.StatusProvisional)
	metrics := types.MemoryMetrics{Opportunities: 10, UseCount: 9, SuspectedRegretHits: 3}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalPromote {
		t.Fatalf("expected promote, got %s (%s)", d.Result, d.Reason)
	}
	if d.NewStatus != types.StatusActive {
		t.Errorf("expected new status active, got %s", d.NewStatus)
	}
	if d.NewTier != types.TierLongTerm {
		t.Errorf("expected tier long_term, got %s", d.NewTier)
	}
	if d.ExpiresAt != nil {
		t.Errorf("expected nil expires_at on promotion to long_term, got %v", d.ExpiresAt)
	}
}

func TestEvaluatePromotesButKeepsShortTermExtendsTTL(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindPattern, types.StatusActive)
	existing := now.Add(10 * 24 * time.Hour)
	mem.ExpiresAt = &existing
	metrics := types.MemoryMetrics{Opportunities: 10, UseCount: 7, SuspectedRegretHits: 3}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalPromote {
		t.Fatalf("expected promote, got %s (%s)", d.Result, d.Reason)
	}
	if d.NewTier != types.TierShortTerm {
		t.Errorf("expected tier to remain short_term, got %s", d.NewTier)
	}
	if d.ExpiresAt == nil {
		t.Fatal("expected extended expires_at, got nil")
	}
	wantExpiry := now.Add(180 * 24 * time.Hour)
	if !d.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected extended expiry %v, got %v", wantExpiry, *d.ExpiresAt)
	}
}

func TestEvaluateDeprecatesLowUsageNote(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindNote, types.StatusActive)
	metrics := types.MemoryMetrics{Opportunities: 6, UseCount: 0, SuspectedRegretHits: 0}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalDeprecate {
		t.Fatalf("expected deprecate, got %s (%s)", d.Result, d.Reason)
	}
	if d.NewStatus != types.StatusDeprecated {
		t.Errorf("expected new status deprecated, got %s", d.NewStatus)
	}
}

func TestEvaluateDecaysInactiveNote(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindNote, types.StatusActive)
	lastUsed := now.Add(-61 * 24 * time.Hour)
	metrics := types.MemoryMetrics{
		Opportunities: 2, // below promotion MinOpportunities for note's default rule (5)
		UseCount:      0,
		LastUsedAt:    &lastUsed,
	}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalDeprecate {
		t.Fatalf("expected decay deprecate, got %s (%s)", d.Result, d.Reason)
	}
}

func TestEvaluateInvariantNeverDecays(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindInvariant, types.StatusActive)
	longAgo := now.Add(-10 * 365 * 24 * time.Hour)
	metrics := types.MemoryMetrics{
		Opportunities: 1,
		UseCount:      0,
		LastUsedAt:    &longAgo,
	}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalNoChange {
		t.Fatalf("expected invariant to never decay, got %s (%s)", d.Result, d.Reason)
	}
}

func TestEvaluateGuardNeedsMoreEvidence(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindGuard, types.StatusProvisional)
	metrics := types.MemoryMetrics{Opportunities: 9, UseCount: 9, SuspectedRegretHits: 3}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalNoChange {
		t.Fatalf("expected no_change (guard needs 10 opportunities), got %s (%s)", d.Result, d.Reason)
	}
}

func TestEvaluateAlreadyDeprecatedNeverChanges(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindPattern, types.StatusDeprecated)
	metrics := types.MemoryMetrics{Opportunities: 100, UseCount: 100, SuspectedRegretHits: 100}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalNoChange {
		t.Fatalf("expected deprecated memory to stay unchanged, got %s", d.Result)
	}
}

func TestEvaluateZeroOpportunitiesNoChange(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindPreference, types.StatusProvisional)
	metrics := types.MemoryMetrics{Opportunities: 0, UseCount: 0}

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalNoChange {
		t.Fatalf("expected no_change at zero opportunities, got %s", d.Result)
	}
}

func TestEvaluateUseRatioAtExactThresholdPromotes(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindPreference, types.StatusActive)
	metrics := types.MemoryMetrics{Opportunities: 5, UseCount: 3, SuspectedRegretHits: 2} // ratio exactly 0.60

	d := e.Evaluate(mem, metrics, now)

	if d.Result != types.EvalPromote {
		t.Fatalf("expected promote at exact threshold, got %s (%s)", d.Result, d.Reason)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator(DefaultPolicy())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mem := baseMemory(types.KindGuard, types.StatusActive)
	lastUsed := now.Add(-5 * 24 * time.Hour)
	metrics := types.MemoryMetrics{Opportunities: 12, UseCount: 1, SuspectedRegretHits: 0, LastUsedAt: &lastUsed}

	first := e.Evaluate(mem, metrics, now)
	second := e.Evaluate(mem, metrics, now)

	if first != second {
		t.Fatalf("expected deterministic evaluation, got %+v vs %+v", first, second)
	}
}
