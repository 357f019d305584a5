package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTranscriptWatcherReceivesNewFile(t *testing.T) {
	dir := t.TempDir()

	received := make(chan string, 1)
	watcher := NewTranscriptWatcher(dir, ".jsonl", func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)

	target := filepath.Join(dir, "session-1.jsonl")
	if err := os.WriteFile(target, []byte(`{"role":"user"}`+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case path := <-received:
		if path != target {
			t.Errorf("expected %s, got %s", target, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watcher callback")
	}
}

func TestTranscriptWatcherIgnoresNonMatchingSuffix(t *testing.T) {
	dir := t.TempDir()

	received := make(chan string, 1)
	watcher := NewTranscriptWatcher(dir, ".jsonl", func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("irrelevant"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case path := <-received:
		t.Fatalf("expected no callback for non-matching file, got %s", path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTranscriptWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "already-here.jsonl"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	received := make(chan string, 10)
	watcher := NewTranscriptWatcher(dir, ".jsonl", func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	if len(received) != 1 {
		t.Fatalf("expected 1 drained file, got %d", len(received))
	}
}

func TestCursorStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewCursorStore(filepath.Join(dir, "cursor.json"))

	off, err := store.Offset("session-1.jsonl")
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if off != 0 {
		t.Errorf("expected 0 for unseen file, got %d", off)
	}

	if err := store.SetOffset("session-1.jsonl", 1024); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}

	off, err = store.Offset("session-1.jsonl")
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if off != 1024 {
		t.Errorf("expected 1024, got %d", off)
	}
}

func TestCursorStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cursor.json")

	if err := NewCursorStore(path).SetOffset("a.jsonl", 42); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}

	off, err := NewCursorStore(path).Offset("a.jsonl")
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if off != 42 {
		t.Errorf("expected offset to persist across store instances, got %d", off)
	}
}
