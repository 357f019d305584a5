// Package notify watches a project's session-transcript directory for
// new and appended files, so the sync subcommand can feed freshly
// written transcript content into ingest_chunk without a polling loop.
package notify

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// TranscriptWatcher watches a directory for transcript file activity
// and dispatches a callback with the changed file's path. It does not
// interpret transcript content; that is the sync subcommand's job.
type TranscriptWatcher struct {
	dir      string
	suffix   string // e.g. ".jsonl"; empty means any file
	callback func(path string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewTranscriptWatcher creates a watcher over dir, matching files whose
// name ends with suffix (pass "" to match every file).
func NewTranscriptWatcher(dir, suffix string, callback func(path string)) *TranscriptWatcher {
	return &TranscriptWatcher{
		dir:      dir,
		suffix:   suffix,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. It first dispatches the callback once for every
// matching file already present (so a restart picks up transcripts
// written while squirrel was not running), then watches for new writes.
// Call Stop to clean up.
func (tw *TranscriptWatcher) Start() error {
	if err := os.MkdirAll(tw.dir, 0o700); err != nil {
		return err
	}

	tw.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(tw.dir); err != nil {
		_ = w.Close()
		return err
	}
	tw.watcher = w

	go tw.loop()
	log.Printf("notify: watching %s for session transcript activity", tw.dir)
	return nil
}

// Stop shuts down the watcher and waits for its goroutine to exit.
func (tw *TranscriptWatcher) Stop() {
	if tw.watcher != nil {
		_ = tw.watcher.Close()
	}
	<-tw.done
}

func (tw *TranscriptWatcher) loop() {
	defer close(tw.done)
	for {
		select {
		case evt, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 && tw.matches(evt.Name) {
				tw.dispatch(evt.Name)
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (tw *TranscriptWatcher) drainExisting() {
	entries, err := os.ReadDir(tw.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && tw.matches(entry.Name()) {
			tw.dispatch(filepath.Join(tw.dir, entry.Name()))
		}
	}
}

func (tw *TranscriptWatcher) matches(name string) bool {
	return tw.suffix == "" || strings.HasSuffix(name, tw.suffix)
}

func (tw *TranscriptWatcher) dispatch(path string) {
	if tw.callback != nil {
		tw.callback(path)
	}
}
