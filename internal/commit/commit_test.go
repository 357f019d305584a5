package commit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/pkg/types"
)

// fakeStore is a minimal in-memory storage.Store for exercising the
// commit layer without sqlite.
type fakeStore struct {
	memories map[string]*types.Memory
	inserted []types.MemoryOp
}

func newFakeStore() *fakeStore {
	return &fakeStore{memories: map[string]*types.Memory{}}
}

func (s *fakeStore) InsertEpisode(ctx context.Context, ep *types.Episode) (string, error) { return "", nil }
func (s *fakeStore) MarkEpisodeProcessed(ctx context.Context, id string) error            { return nil }
func (s *fakeStore) GetUnprocessedEpisodes(ctx context.Context, projectID string, limit int) ([]*types.Episode, error) {
	return nil, nil
}

func (s *fakeStore) InsertMemory(ctx context.Context, op *types.MemoryOp, episodeID string, embedding []byte) (string, error) {
	id := uuid.NewString()
	s.memories[id] = &types.Memory{
		ID:        id,
		Kind:      op.Kind,
		Key:       op.Key,
		Text:      op.Text,
		Status:    types.StatusProvisional,
		Embedding: embedding,
	}
	s.inserted = append(s.inserted, *op)
	return id, nil
}

func (s *fakeStore) DeprecateMemory(ctx context.Context, id string) error {
	mem, ok := s.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	mem.Status = types.StatusDeprecated
	return nil
}

func (s *fakeStore) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	mem, ok := s.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return mem, nil
}

func (s *fakeStore) GetMemoriesByKey(ctx context.Context, key string, status types.MemoryStatus) ([]*types.Memory, error) {
	return nil, nil
}
func (s *fakeStore) GetActiveMemories(ctx context.Context, filter storage.ActiveMemoryFilter, limit int) ([]*types.Memory, error) {
	return nil, nil
}
func (s *fakeStore) SearchMemoriesByText(ctx context.Context, substring string, limit int) ([]*types.Memory, error) {
	return nil, nil
}
func (s *fakeStore) GetMetrics(ctx context.Context, memoryID string) (*types.MemoryMetrics, error) {
	return &types.MemoryMetrics{MemoryID: memoryID}, nil
}
func (s *fakeStore) IncrementUseCount(ctx context.Context, id string) error          { return nil }
func (s *fakeStore) IncrementOpportunities(ctx context.Context, ids []string) error  { return nil }
func (s *fakeStore) ApplyDecision(ctx context.Context, d types.Decision) error       { return nil }
func (s *fakeStore) Close() error                                                   { return nil }

var _ storage.Store = (*fakeStore)(nil)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestApplyAddCommitsWithEmbedding(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	applier := New(store, emb)

	op := types.MemoryOp{Op: types.OpAdd, Kind: types.KindPattern, Text: "use uv for python deps"}
	results := applier.Apply(context.Background(), []types.MemoryOp{op}, "ep-1")

	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !results[0].EmbeddedOK {
		t.Error("expected embedding to succeed")
	}
	mem := store.memories[results[0].MemoryID]
	if mem == nil || mem.Status != types.StatusProvisional {
		t.Fatalf("expected provisional memory row, got %+v", mem)
	}
	if mem.Embedding == nil {
		t.Error("expected embedding bytes on the stored row")
	}
}

func TestApplyAddCommitsWithNullEmbeddingOnFailure(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{err: errors.New("provider unreachable")}
	applier := New(store, emb)

	op := types.MemoryOp{Op: types.OpAdd, Kind: types.KindNote, Text: "flaky network"}
	results := applier.Apply(context.Background(), []types.MemoryOp{op}, "ep-1")

	if results[0].Err != nil {
		t.Fatalf("expected commit to succeed despite embedding failure, got %v", results[0].Err)
	}
	if results[0].EmbeddedOK {
		t.Error("expected EmbeddedOK false")
	}
	mem := store.memories[results[0].MemoryID]
	if mem.Embedding != nil {
		t.Error("expected nil embedding on the stored row")
	}
}

func TestApplyAddWithNilEmbedderCommitsNull(t *testing.T) {
	store := newFakeStore()
	applier := New(store, nil)

	op := types.MemoryOp{Op: types.OpAdd, Kind: types.KindGuard, Text: "never force-push main"}
	results := applier.Apply(context.Background(), []types.MemoryOp{op}, "ep-1")

	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].EmbeddedOK {
		t.Error("expected EmbeddedOK false with nil embedder")
	}
}

func TestApplyUpdateDeprecatesThenInserts(t *testing.T) {
	store := newFakeStore()
	applier := New(store, nil)

	addResults := applier.Apply(context.Background(), []types.MemoryOp{
		{Op: types.OpAdd, Kind: types.KindPreference, Key: "project.http.client", Text: "use net/http directly"},
	}, "ep-1")
	targetID := addResults[0].MemoryID

	updateOp := types.MemoryOp{
		Op:       types.OpUpdate,
		TargetID: targetID,
		Kind:     types.KindPreference,
		Key:      "project.http.client",
		Text:     "use resty for HTTP clients",
	}
	results := applier.Apply(context.Background(), []types.MemoryOp{updateOp}, "ep-2")

	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}

	oldMem := store.memories[targetID]
	if oldMem.Status != types.StatusDeprecated {
		t.Errorf("expected old memory deprecated, got %s", oldMem.Status)
	}

	newMem := store.memories[results[0].MemoryID]
	if newMem.Key != "project.http.client" {
		t.Errorf("expected new row to inherit key, got %q", newMem.Key)
	}
	if newMem.Text != "use resty for HTTP clients" {
		t.Errorf("expected new row to carry updated text, got %q", newMem.Text)
	}
}

func TestApplyUpdateMissingTargetIDFails(t *testing.T) {
	store := newFakeStore()
	applier := New(store, nil)

	results := applier.Apply(context.Background(), []types.MemoryOp{
		{Op: types.OpUpdate, Text: "no target"},
	}, "ep-1")

	if results[0].Err == nil {
		t.Fatal("expected error for update op with no target_id")
	}
}

func TestApplyDeprecateSetsStatus(t *testing.T) {
	store := newFakeStore()
	applier := New(store, nil)

	addResults := applier.Apply(context.Background(), []types.MemoryOp{
		{Op: types.OpAdd, Kind: types.KindNote, Text: "temp note"},
	}, "ep-1")
	id := addResults[0].MemoryID

	results := applier.Apply(context.Background(), []types.MemoryOp{
		{Op: types.OpDeprecate, TargetID: id},
	}, "ep-2")

	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if store.memories[id].Status != types.StatusDeprecated {
		t.Error("expected memory deprecated")
	}
}

func TestApplyBatchContinuesAfterPerOpFailure(t *testing.T) {
	store := newFakeStore()
	applier := New(store, nil)

	ops := []types.MemoryOp{
		{Op: types.OpDeprecate, TargetID: "does-not-exist"},
		{Op: types.OpAdd, Kind: types.KindPattern, Text: "second op still commits"},
	}
	results := applier.Apply(context.Background(), ops, "ep-1")

	if results[0].Err == nil {
		t.Error("expected first op to fail")
	}
	if results[1].Err != nil {
		t.Errorf("expected second op to commit independently, got %v", results[1].Err)
	}
}
