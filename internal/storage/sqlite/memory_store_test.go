package sqlite

import (
	"context"
	"testing"

	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/pkg/types"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(":memory:")
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertMemoryCreatesMetricsAndEvidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	epID, err := s.InsertEpisode(ctx, &types.Episode{ProjectID: "proj1"})
	if err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}

	op := &types.MemoryOp{
		Op:         types.OpAdd,
		Scope:      types.ScopeProject,
		ProjectID:  "proj1",
		OwnerType:  types.OwnerUser,
		OwnerID:    "u1",
		Kind:       types.KindGuard,
		Tier:       types.TierShortTerm,
		Polarity:   types.PolarityNegative,
		Text:       "never commit secrets",
		Confidence: 0.95,
		Source:     types.SourceUserCorrection,
	}

	id, err := s.InsertMemory(ctx, op, epID, nil)
	if err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	mem, err := s.GetMemoryByID(ctx, id)
	if err != nil {
		t.Fatalf("GetMemoryByID: %v", err)
	}
	if mem.Status != types.StatusProvisional {
		t.Errorf("expected provisional status, got %s", mem.Status)
	}

	metrics, err := s.GetMetrics(ctx, id)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if metrics.UseCount != 0 || metrics.Opportunities != 0 {
		t.Errorf("expected zeroed metrics, got %+v", metrics)
	}
}

func TestDeprecateMemoryNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeprecateMemory(context.Background(), "missing")
	if err != storage.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementUseCountAndOpportunities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertMemory(ctx, &types.MemoryOp{
		Op: types.OpAdd, Kind: types.KindNote, Tier: types.TierShortTerm,
		Polarity: types.PolarityPositive, Text: "x", Scope: types.ScopeGlobal,
		OwnerType: types.OwnerUser, OwnerID: "u1",
	}, "", nil)
	if err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	if err := s.IncrementOpportunities(ctx, []string{id, id}); err != nil {
		t.Fatalf("IncrementOpportunities: %v", err)
	}
	if err := s.IncrementUseCount(ctx, id); err != nil {
		t.Fatalf("IncrementUseCount: %v", err)
	}

	metrics, err := s.GetMetrics(ctx, id)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if metrics.Opportunities != 2 {
		t.Errorf("expected opportunities=2, got %d", metrics.Opportunities)
	}
	if metrics.UseCount != 1 {
		t.Errorf("expected use_count=1, got %d", metrics.UseCount)
	}
	if metrics.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}

func TestSearchMemoriesByTextExcludesDeprecated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertMemory(ctx, &types.MemoryOp{
		Op: types.OpAdd, Kind: types.KindPattern, Tier: types.TierShortTerm,
		Polarity: types.PolarityPositive, Text: "use context managers for files",
		Scope: types.ScopeGlobal, OwnerType: types.OwnerUser, OwnerID: "u1",
	}, "", nil)
	if err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	results, err := s.SearchMemoriesByText(ctx, "context managers", 10)
	if err != nil {
		t.Fatalf("SearchMemoriesByText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if err := s.DeprecateMemory(ctx, id); err != nil {
		t.Fatalf("DeprecateMemory: %v", err)
	}

	results, err = s.SearchMemoriesByText(ctx, "context managers", 10)
	if err != nil {
		t.Fatalf("SearchMemoriesByText: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected deprecated memory excluded, got %d results", len(results))
	}
}
