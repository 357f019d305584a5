// Package sqlite implements storage.Store on an embedded, CGO-free SQLite
// database (modernc.org/sqlite), matching the spec's "single embedded file,
// local-first" persistence model.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // driver registration

	"github.com/kamino/squirrel/internal/storage"
	"github.com/kamino/squirrel/pkg/types"
)

// MemoryStore implements storage.Store using SQLite.
type MemoryStore struct {
	db *sql.DB
}

var _ storage.Store = (*MemoryStore)(nil)

// NewMemoryStore opens (creating if necessary) a SQLite database at dsn,
// applies pending migrations, and configures WAL mode. If the initial open
// fails because of stale WAL files left behind by a crashed process, it
// verifies no other process holds them and retries once after removing the
// stale -shm/-wal files.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	store, err := openMemoryStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openMemoryStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one concurrent writer; a single open connection
	// serializes writes and avoids SQLITE_BUSY. WAL lets readers proceed
	// without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	root, err := migrationsRoot()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	mgr, err := storage.NewMigrationManager(db, root)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mgr.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

func (s *MemoryStore) InsertEpisode(ctx context.Context, ep *types.Episode) (string, error) {
	if ep == nil {
		return "", storage.ErrInvalidInput
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	eventsJSON, err := json.Marshal(ep.Events)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to marshal events: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, project_id, events, error_count, retry_loops, user_frustration, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.ID, ep.ProjectID, string(eventsJSON), ep.ErrorCount, ep.RetryLoops, string(ep.UserFrustration), ep.Processed, ep.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert episode: %w", err)
	}

	return ep.ID, nil
}

func (s *MemoryStore) MarkEpisodeProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE episodes SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to mark episode processed: %w", err)
	}
	return requireOneRow(res)
}

func (s *MemoryStore) GetUnprocessedEpisodes(ctx context.Context, projectID string, limit int) ([]*types.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, events, error_count, retry_loops, user_frustration, processed, created_at
		FROM episodes
		WHERE project_id = ? AND processed = 0
		ORDER BY created_at ASC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query unprocessed episodes: %w", err)
	}
	defer rows.Close()

	var out []*types.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func scanEpisode(rows *sql.Rows) (*types.Episode, error) {
	var ep types.Episode
	var eventsJSON, frustration string
	var processed bool
	if err := rows.Scan(&ep.ID, &ep.ProjectID, &eventsJSON, &ep.ErrorCount, &ep.RetryLoops, &frustration, &processed, &ep.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan episode: %w", err)
	}
	ep.UserFrustration = types.Frustration(frustration)
	ep.Processed = processed
	if err := json.Unmarshal([]byte(eventsJSON), &ep.Events); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal events: %w", err)
	}
	return &ep, nil
}

// InsertMemory allocates an ID, writes the memory row, its initial metrics
// row, and an evidence row tying it to episodeID, all in one transaction.
// No evidence row is written when episodeID is empty.
func (s *MemoryStore) InsertMemory(ctx context.Context, op *types.MemoryOp, episodeID string, embedding []byte) (string, error) {
	if op == nil {
		return "", storage.ErrInvalidInput
	}
	if op.Text == "" {
		return "", fmt.Errorf("%w: memory text is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, scope, project_id, owner_type, owner_id, kind, tier, polarity, key, text, status, confidence, expires_at, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(op.Scope), op.ProjectID, string(op.OwnerType), op.OwnerID, string(op.Kind), string(op.Tier), int(op.Polarity), op.Key, op.Text,
		string(types.StatusProvisional), op.Confidence, nullableTime(nil), nullableBytes(embedding), now, now)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_metrics (memory_id, use_count, opportunities, suspected_regret_hits, estimated_regret_saved)
		VALUES (?, 0, 0, 0, 0)
	`, id)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert metrics: %w", err)
	}

	if episodeID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO evidence (id, memory_id, episode_id, source, frustration, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), id, episodeID, string(op.Source), string(op.Frustration), now)
		if err != nil {
			return "", fmt.Errorf("sqlite: failed to insert evidence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: failed to commit: %w", err)
	}

	return id, nil
}

func (s *MemoryStore) DeprecateMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET status = ?, updated_at = ? WHERE id = ?
	`, string(types.StatusDeprecated), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to deprecate memory: %w", err)
	}
	return requireOneRow(res)
}

const memoryColumns = `id, scope, project_id, owner_type, owner_id, kind, tier, polarity, key, text, status, confidence, expires_at, embedding, created_at, updated_at`

func scanMemory(row interface{ Scan(...any) error }) (*types.Memory, error) {
	var m types.Memory
	var scope, ownerType, kind, tier, status string
	var polarity int
	var expiresAt sql.NullTime
	var embedding []byte

	if err := row.Scan(&m.ID, &scope, &m.ProjectID, &ownerType, &m.OwnerID, &kind, &tier, &polarity, &m.Key, &m.Text, &status,
		&m.Confidence, &expiresAt, &embedding, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.Scope = types.Scope(scope)
	m.OwnerType = types.OwnerType(ownerType)
	m.Kind = types.MemoryKind(kind)
	m.Tier = types.MemoryTier(tier)
	m.Polarity = types.Polarity(polarity)
	m.Status = types.MemoryStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	if len(embedding) > 0 {
		m.Embedding = embedding
	}

	return &m, nil
}

func (s *MemoryStore) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return m, nil
}

func (s *MemoryStore) GetMemoriesByKey(ctx context.Context, key string, status types.MemoryStatus) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE key = ? AND status = ?`, key, string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query memories by key: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *MemoryStore) GetActiveMemories(ctx context.Context, filter storage.ActiveMemoryFilter, limit int) ([]*types.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE status IN (?, ?)`
	args := []any{string(types.StatusActive), string(types.StatusProvisional)}

	if filter.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, string(filter.Scope))
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.OwnerType != "" {
		query += ` AND owner_type = ?`
		args = append(args, string(filter.OwnerType))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query active memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *MemoryStore) SearchMemoriesByText(ctx context.Context, substring string, limit int) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE text LIKE ? AND status != ?
		ORDER BY created_at DESC
		LIMIT ?
	`, "%"+escapeLike(substring)+"%", string(types.StatusDeprecated), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]*types.Memory, error) {
	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MemoryStore) GetMetrics(ctx context.Context, memoryID string) (*types.MemoryMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT memory_id, use_count, opportunities, suspected_regret_hits, estimated_regret_saved, last_used_at, last_evaluated_at
		FROM memory_metrics WHERE memory_id = ?
	`, memoryID)

	var mm types.MemoryMetrics
	var lastUsed, lastEval sql.NullTime
	if err := row.Scan(&mm.MemoryID, &mm.UseCount, &mm.Opportunities, &mm.SuspectedRegretHits, &mm.EstimatedRegretSaved, &lastUsed, &lastEval); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get metrics: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		mm.LastUsedAt = &t
	}
	if lastEval.Valid {
		t := lastEval.Time
		mm.LastEvaluatedAt = &t
	}
	return &mm, nil
}

func (s *MemoryStore) IncrementUseCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_metrics SET use_count = use_count + 1, last_used_at = ? WHERE memory_id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment use_count: %w", err)
	}
	return requireOneRow(res)
}

func (s *MemoryStore) IncrementOpportunities(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memory_metrics SET opportunities = opportunities + 1 WHERE memory_id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("sqlite: failed to increment opportunities for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *MemoryStore) ApplyDecision(ctx context.Context, d types.Decision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if d.Result != types.EvalNoChange {
		_, err = tx.ExecContext(ctx, `
			UPDATE memories SET status = ?, tier = ?, expires_at = ?, updated_at = ? WHERE id = ?
		`, string(d.NewStatus), string(d.NewTier), nullableTime(d.ExpiresAt), now, d.MemoryID)
		if err != nil {
			return fmt.Errorf("sqlite: failed to apply decision: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memory_metrics SET last_evaluated_at = ? WHERE memory_id = ?
	`, now, d.MemoryID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to stamp last_evaluated_at: %w", err)
	}

	return tx.Commit()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN. Handles
// bare paths and file: URIs. Returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}
	return dsn
}

// isRecoverableWALError matches patterns caused by stale WAL files left
// behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist AND no other process
// currently holds them open (via lsof). Conservative: false if lsof is
// unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
