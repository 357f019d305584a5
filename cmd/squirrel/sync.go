package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamino/squirrel/internal/config"
	"github.com/kamino/squirrel/internal/notify"
)

// transcriptEvent is the JSON shape a SessionParser is expected to emit,
// one per line of a transcript file. It mirrors internal/ipc's wireEvent
// wire shape exactly so a line can be dropped straight into
// ingest_chunk's events[] unmodified.
type transcriptEvent struct {
	TS         time.Time `json:"ts"`
	Role       string    `json:"role"`
	Kind       string    `json:"kind"`
	Summary    string    `json:"summary"`
	ToolName   string    `json:"tool_name,omitempty"`
	File       string    `json:"file,omitempty"`
	RawSnippet string    `json:"raw_snippet,omitempty"`
	IsError    bool      `json:"is_error"`
}

func newSyncCmd() *cobra.Command {
	var (
		projectDir     string
		transcriptsDir string
		projectID      string
		ownerType      string
		ownerID        string
		socketOverride string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Watch a project's session-transcript directory and stream new events into a running squirrel daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(syncOptions{
				projectDir:     projectDir,
				transcriptsDir: transcriptsDir,
				projectID:      projectID,
				ownerType:      ownerType,
				ownerID:        ownerID,
				socketOverride: socketOverride,
			})
		},
	}
	cmd.Flags().StringVar(&projectDir, "project-dir", ".", "project root, holding .sqrl/")
	cmd.Flags().StringVar(&transcriptsDir, "transcripts-dir", "", "directory of *.jsonl transcript files (default: <project-dir>/.sqrl/transcripts)")
	cmd.Flags().StringVar(&projectID, "project", "", "project_id to pass to ingest_chunk (required)")
	cmd.Flags().StringVar(&ownerType, "owner-type", "user", "owner_type to pass to ingest_chunk")
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner_id to pass to ingest_chunk (required)")
	cmd.Flags().StringVar(&socketOverride, "socket", "", "override SQRL_SOCKET_PATH")
	return cmd
}

type syncOptions struct {
	projectDir     string
	transcriptsDir string
	projectID      string
	ownerType      string
	ownerID        string
	socketOverride string
}

func runSync(opts syncOptions) error {
	if opts.projectID == "" || opts.ownerID == "" {
		return fmt.Errorf("squirrel: sync requires --project and --owner-id")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	socketPath := cfg.Server.SocketPath
	if opts.socketOverride != "" {
		socketPath = opts.socketOverride
	}

	transcriptsDir := opts.transcriptsDir
	if transcriptsDir == "" {
		transcriptsDir = filepath.Join(opts.projectDir, ".sqrl", "transcripts")
	}
	cursorPath := filepath.Join(opts.projectDir, ".sqrl", "sync-cursor.json")
	cursors := notify.NewCursorStore(cursorPath)

	s := &syncer{
		socketPath: socketPath,
		projectID:  opts.projectID,
		ownerType:  opts.ownerType,
		ownerID:    opts.ownerID,
		cursors:    cursors,
		carry:      map[string]json.RawMessage{},
	}

	watcher := notify.NewTranscriptWatcher(transcriptsDir, ".jsonl", s.onFileChanged)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("squirrel: watch %s: %w", transcriptsDir, err)
	}
	defer watcher.Stop()

	log.Printf("syncing %s into project %s", transcriptsDir, opts.projectID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("received shutdown signal")
	return nil
}

type syncer struct {
	socketPath string
	projectID  string
	ownerType  string
	ownerID    string
	cursors    *notify.CursorStore

	mu    sync.Mutex
	carry map[string]json.RawMessage
}

func (s *syncer) onFileChanged(path string) {
	offset, err := s.cursors.Offset(path)
	if err != nil {
		log.Printf("sync: cursor lookup for %s: %v", path, err)
		return
	}

	events, newOffset, err := readNewEvents(path, offset)
	if err != nil {
		log.Printf("sync: reading %s: %v", path, err)
		return
	}
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	carry := s.carry[path]
	s.mu.Unlock()

	params := map[string]interface{}{
		"project_id":  s.projectID,
		"owner_type":  s.ownerType,
		"owner_id":    s.ownerID,
		"events":      events,
		"carry_state": carry,
	}

	var result struct {
		CarryState json.RawMessage `json:"carry_state"`
		Memories   []interface{}   `json:"memories"`
	}

	client, err := dialIPC(s.socketPath, 5*time.Second)
	if err != nil {
		log.Printf("sync: %v", err)
		return
	}
	defer client.Close()

	if err := client.Call("ingest_chunk", params, &result); err != nil {
		log.Printf("sync: ingest_chunk for %s failed: %v", path, err)
		return
	}

	s.mu.Lock()
	s.carry[path] = result.CarryState
	s.mu.Unlock()

	if err := s.cursors.SetOffset(path, newOffset); err != nil {
		log.Printf("sync: failed to persist cursor for %s: %v", path, err)
	}
	if len(result.Memories) > 0 {
		log.Printf("sync: committed %d memories from %s", len(result.Memories), filepath.Base(path))
	}
}

// readNewEvents reads path starting at offset, parsing each complete
// line as a transcriptEvent. It returns the events found and the new
// offset to resume from (the byte position just past the last complete
// line), so a line still being written is left for the next pass.
func readNewEvents(path string, offset int64) ([]transcriptEvent, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	var events []transcriptEvent
	reader := bufio.NewReader(f)
	pos := offset

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			var ev transcriptEvent
			if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &ev); jsonErr != nil {
				log.Printf("sync: skipping malformed transcript line in %s: %v", path, jsonErr)
			} else {
				events = append(events, ev)
			}
			pos += int64(len(line))
		}
		if err != nil {
			break
		}
	}

	return events, pos, nil
}
