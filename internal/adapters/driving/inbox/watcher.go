// Package inbox ingests documents dropped into a watched directory.
//
// Files appearing in the inbox are debounced until writes settle, then
// funnelled through the ingestion gate like any other intake channel.
// Successfully ingested files are deleted; rejected files are moved to
// a failed/ subdirectory so they are not retried on every restart.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// defaultDebounce is how long a file must be quiet before ingestion.
// Large scans arrive in many write chunks; ingesting too early reads a
// truncated file.
const defaultDebounce = 500 * time.Millisecond

// failedDir is the subdirectory rejected files are moved to.
const failedDir = "failed"

// Watcher watches one inbox directory and ingests files dropped into it.
type Watcher struct {
	dir      string
	ingest   driving.IngestService
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher for the given directory.
func NewWatcher(dir string, ingest driving.IngestService) *Watcher {
	return &Watcher{
		dir:      dir,
		ingest:   ingest,
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches the inbox until the context is cancelled. Files already
// present at startup are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	logger.Info("Watching inbox directory: %s", w.dir)
	w.sweepExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.cancelTimers()
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				logger.Warn("Inbox watcher error: %v", err)
			}
		}
	}
}

// sweepExisting ingests files that were already in the inbox when the
// watcher started.
func (w *Watcher) sweepExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("Reading inbox directory: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !eligible(entry.Name()) {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	path := ev.Name
	if !eligible(filepath.Base(path)) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.scheduleIngest(ctx, path)
}

// scheduleIngest (re)arms the debounce timer for one path. Each new
// write pushes ingestion back until the file has been quiet for the
// full debounce window.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// ingestFile funnels one file through the ingestion gate. The file is
// removed on success and quarantined on rejection.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		// The file may have been picked up and removed already.
		if !os.IsNotExist(err) {
			logger.Warn("Opening inbox file %s: %v", path, err)
		}
		return
	}

	doc, err := w.ingest.Ingest(ctx, driving.IngestRequest{
		Filename: filepath.Base(path),
		Content:  f,
	})
	f.Close()

	if err != nil {
		logger.Warn("Ingesting inbox file %s: %v", path, err)
		w.quarantine(path)
		return
	}

	logger.Info("Ingested %s as document %s", filepath.Base(path), doc.ID)
	if err := os.Remove(path); err != nil {
		logger.Warn("Removing ingested inbox file %s: %v", path, err)
	}
}

// quarantine moves a rejected file into the failed/ subdirectory so it
// is not re-ingested on the next sweep.
func (w *Watcher) quarantine(path string) {
	dir := filepath.Join(w.dir, failedDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		logger.Warn("Creating quarantine directory: %v", err)
		return
	}
	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Warn("Quarantining %s: %v", path, err)
	}
}

// eligible filters out hidden files and editor temp files.
func eligible(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".crdownload") {
		return false
	}
	return true
}
