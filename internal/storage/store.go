// Package storage defines the persistence contract for memories, evidence,
// metrics, and episodes, and an embedded SQLite implementation of it.
package storage

import (
	"context"
	"errors"

	"github.com/kamino/squirrel/pkg/types"
)

// ErrNotFound is returned when a lookup by ID or key finds no row.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidInput is returned when a caller-supplied value fails a
// precondition the store itself must enforce (e.g. a missing ID).
var ErrInvalidInput = errors.New("storage: invalid input")

// ActiveMemoryFilter narrows get_active_memories.
type ActiveMemoryFilter struct {
	Scope     types.Scope
	ProjectID string
	OwnerType types.OwnerType
	OwnerID   string
	Kind      types.MemoryKind // empty means any kind
}

// Store is the embedded, transactional backing store for Squirrel. Every
// write is atomic: on crash, either the whole commit is visible or none of
// it is. Schema initialization is idempotent.
type Store interface {
	InsertEpisode(ctx context.Context, ep *types.Episode) (string, error)
	MarkEpisodeProcessed(ctx context.Context, id string) error
	GetUnprocessedEpisodes(ctx context.Context, projectID string, limit int) ([]*types.Episode, error)

	// InsertMemory allocates an ID, writes the memory row, its initial
	// metrics row, and an evidence row tying it to episodeID, all in one
	// transaction; no evidence row is written when episodeID is empty.
	// embedding may be nil (best-effort embedding policy).
	InsertMemory(ctx context.Context, op *types.MemoryOp, episodeID string, embedding []byte) (string, error)

	DeprecateMemory(ctx context.Context, id string) error

	GetMemoryByID(ctx context.Context, id string) (*types.Memory, error)
	GetMemoriesByKey(ctx context.Context, key string, status types.MemoryStatus) ([]*types.Memory, error)
	GetActiveMemories(ctx context.Context, filter ActiveMemoryFilter, limit int) ([]*types.Memory, error)
	SearchMemoriesByText(ctx context.Context, substring string, limit int) ([]*types.Memory, error)

	GetMetrics(ctx context.Context, memoryID string) (*types.MemoryMetrics, error)
	IncrementUseCount(ctx context.Context, id string) error
	IncrementOpportunities(ctx context.Context, ids []string) error

	// ApplyDecision persists an evaluator Decision: status/tier/expiry
	// changes and the last_evaluated_at stamp.
	ApplyDecision(ctx context.Context, d types.Decision) error

	Close() error
}
