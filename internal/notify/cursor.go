package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CursorStore persists the byte offset sync has already read from each
// transcript file, so restarting squirrel does not re-ingest content
// already sent to ingest_chunk.
type CursorStore struct {
	path string
	mu   sync.Mutex
}

// NewCursorStore creates a store backed by a single JSON file at path.
func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

// Offset returns the last recorded byte offset for file, or 0 if none
// is recorded.
func (c *CursorStore) Offset(file string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offsets, err := c.load()
	if err != nil {
		return 0, err
	}
	return offsets[file], nil
}

// SetOffset records the byte offset sync has read up to for file.
// Safe to call concurrently. Errors are returned but not fatal to the
// caller's ingestion loop.
func (c *CursorStore) SetOffset(file string, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	offsets, err := c.load()
	if err != nil {
		return err
	}
	offsets[file] = offset
	return c.save(offsets)
}

func (c *CursorStore) load() (map[string]int64, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notify: read cursor file %s: %w", c.path, err)
	}

	offsets := map[string]int64{}
	if err := json.Unmarshal(data, &offsets); err != nil {
		return nil, fmt.Errorf("notify: malformed cursor file %s: %w", c.path, err)
	}
	return offsets, nil
}

func (c *CursorStore) save(offsets map[string]int64) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", filepath.Dir(c.path), err)
	}
	data, err := json.Marshal(offsets)
	if err != nil {
		return fmt.Errorf("notify: marshal cursor state: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}
