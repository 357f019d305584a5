// Package commit applies a batch of extractor-produced MemoryOps to the
// Store: ID allocation, best-effort embedding, evidence linkage, and the
// deprecate-then-insert rule for UPDATE.
package commit

import (
	"context"
	"fmt"
	"log"

	"github.com/kamino/squirrel/internal/embedder"
	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/pkg/types"
)

// DefaultConfidenceThreshold is the extractor-output filter applied by
// callers upstream of Apply; Apply itself does not filter by confidence.
const DefaultConfidenceThreshold = 0.8

// Result reports the outcome of applying a single op, for callers that
// want to log or return per-op status (e.g. the ingest_chunk handler).
type Result struct {
	Op          types.MemoryOp
	MemoryID    string
	EmbeddedOK  bool
	Err         error
}

// Applier commits MemoryOp batches against a Store, generating embeddings
// through an Embedder on a best-effort basis.
type Applier struct {
	store    storage.Store
	embedder embedder.Embedder // nil is valid: every op commits with embedding=NULL
}

// New constructs an Applier. embedder may be nil when no embedding backend
// is configured; every ADD/UPDATE then commits with a NULL embedding.
func New(store storage.Store, emb embedder.Embedder) *Applier {
	return &Applier{store: store, embedder: emb}
}

// Apply applies ops in order against episodeID's evidence trail. Each op
// commits at its own point: a failure partway through the batch leaves
// earlier ops' effects intact and is reported in that op's Result.
func (a *Applier) Apply(ctx context.Context, ops []types.MemoryOp, episodeID string) []Result {
	results := make([]Result, 0, len(ops))

	for _, op := range ops {
		var res Result
		res.Op = op

		switch op.Op {
		case types.OpAdd:
			res = a.applyAdd(ctx, op, episodeID)
		case types.OpUpdate:
			res = a.applyUpdate(ctx, op, episodeID)
		case types.OpDeprecate:
			res = a.applyDeprecate(ctx, op)
		default:
			res.Err = fmt.Errorf("commit: unknown op type %q", op.Op)
		}

		results = append(results, res)
	}

	return results
}

func (a *Applier) applyAdd(ctx context.Context, op types.MemoryOp, episodeID string) Result {
	embedding, embeddedOK := a.embed(ctx, op.Text)

	id, err := a.store.InsertMemory(ctx, &op, episodeID, embedding)
	if err != nil {
		return Result{Op: op, Err: fmt.Errorf("commit: insert failed: %w", err)}
	}

	return Result{Op: op, MemoryID: id, EmbeddedOK: embeddedOK}
}

// applyUpdate deprecates op.TargetID and inserts a new memory carrying the
// op's fields, preserving op.Key for downstream lookups by key. Both
// operations are best-effort sequenced: the deprecate happens first so a
// failed insert never leaves two active rows for the same key.
func (a *Applier) applyUpdate(ctx context.Context, op types.MemoryOp, episodeID string) Result {
	if op.TargetID == "" {
		return Result{Op: op, Err: fmt.Errorf("commit: update op missing target_id")}
	}

	if err := a.store.DeprecateMemory(ctx, op.TargetID); err != nil {
		return Result{Op: op, Err: fmt.Errorf("commit: deprecate for update failed: %w", err)}
	}

	embedding, embeddedOK := a.embed(ctx, op.Text)

	id, err := a.store.InsertMemory(ctx, &op, episodeID, embedding)
	if err != nil {
		return Result{Op: op, Err: fmt.Errorf("commit: insert for update failed: %w", err)}
	}

	return Result{Op: op, MemoryID: id, EmbeddedOK: embeddedOK}
}

func (a *Applier) applyDeprecate(ctx context.Context, op types.MemoryOp) Result {
	if op.TargetID == "" {
		return Result{Op: op, Err: fmt.Errorf("commit: deprecate op missing target_id")}
	}

	if err := a.store.DeprecateMemory(ctx, op.TargetID); err != nil {
		return Result{Op: op, Err: fmt.Errorf("commit: deprecate failed: %w", err)}
	}

	return Result{Op: op, MemoryID: op.TargetID}
}

// embed computes a packed embedding for text. A nil embedder or any
// embedder error is logged and treated as best-effort failure: the caller
// still commits the memory row with embedding=NULL.
func (a *Applier) embed(ctx context.Context, text string) (embedding []byte, ok bool) {
	if a.embedder == nil {
		return nil, false
	}

	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("commit: embedding failed, committing with embedding=NULL: %v", err)
		return nil, false
	}

	return embedder.EncodeVector(vec), true
}
