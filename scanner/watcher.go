package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/metainf/diag"
)

// WatcherConfig configures the file watcher
type WatcherConfig struct {
	// Source decides which files are scanned and how.
	Source *Source

	// DebounceDelay is how long to wait for more changes before processing
	DebounceDelay time.Duration

	// Sink receives scan failures. Defaults to diag.Discard.
	Sink diag.Sink

	// Logger for logging events
	Logger *slog.Logger
}

// WatchOperation indicates the type of file operation
type WatchOperation string

const (
	OpCreate WatchOperation = "create"
	OpModify WatchOperation = "modify"
	OpDelete WatchOperation = "delete"
)

// WatchEvent represents a file change event
type WatchEvent struct {
	// Path is the file path relative to the source base
	Path string

	// Operation is the type of change
	Operation WatchOperation

	// Result is the scan result (nil for delete operations)
	Result *ScanResult
}

// Batch is the set of changes collected during one debounce window.
type Batch struct {
	Events []WatchEvent
}

// Results returns the scan results of created and modified files.
func (b Batch) Results() []*ScanResult {
	var out []*ScanResult
	for _, e := range b.Events {
		if e.Result != nil {
			out = append(out, e.Result)
		}
	}
	return out
}

// Watcher watches source roots and emits batches of rescanned files.
type Watcher struct {
	config  WatcherConfig
	source  *Source
	watcher *fsnotify.Watcher
	sink    diag.Sink
	logger  *slog.Logger
	delay   time.Duration

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation

	// State tracking for change detection
	hashMu sync.RWMutex
	hashes map[string]string // path → content hash

	// Output channel
	batches chan Batch
	done    chan struct{}
}

// NewWatcher creates a new file watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("watcher requires a source")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := config.Sink
	if sink == nil {
		sink = diag.Discard
	}

	debounce := config.DebounceDelay
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		source:  config.Source,
		watcher: fsw,
		sink:    sink,
		logger:  logger,
		delay:   debounce,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		batches: make(chan Batch, 16),
		done:    make(chan struct{}),
	}, nil
}

// Batches returns the channel of change batches. It is closed when the
// watcher stops.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Start begins watching the source roots for changes
func (w *Watcher) Start(ctx context.Context) error {
	roots, err := w.source.Roots()
	if err != nil {
		return err
	}

	for _, root := range roots {
		if err := w.addWatchesRecursive(root); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"roots", roots,
		"debounce", w.delay)

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// SetHash records the hash for a file (used during the initial scan)
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded hash for a file
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

// Prime records the hashes of an initial scan so unchanged files are not
// reported again.
func (w *Watcher) Prime(results []*ScanResult) {
	for _, r := range results {
		w.SetHash(r.Path, r.Hash)
	}
}

// addWatchesRecursive adds watches to all directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.source.SkipDir(path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.delay)
	defer ticker.Stop()
	defer close(w.done)
	defer close(w.batches)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if !w.source.Accepts(path) {
		// But handle directory creation (for new watches)
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.handleNewDirectory(path)
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected",
		"path", w.source.rel(path),
		"op", event.Op.String())
}

// handleNewDirectory adds watches to a newly created directory tree
func (w *Watcher) handleNewDirectory(path string) {
	if w.source.SkipDir(path) {
		return
	}

	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
		return
	}
	w.logger.Debug("Added watch for new directory", "path", path)
}

// flushPending processes accumulated changes
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}

	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(toProcess))
	for path := range toProcess {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var batch Batch
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}

		op := toProcess[path]
		relPath := w.source.rel(path)

		// Renames are a delete of the old name plus a create of the new one
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) || !exists(path) {
			w.hashMu.Lock()
			delete(w.hashes, relPath)
			w.hashMu.Unlock()
			batch.Events = append(batch.Events, WatchEvent{Path: relPath, Operation: OpDelete})
			continue
		}

		results := w.source.ScanFiles(ctx, []string{path}, w.sink)
		if len(results) == 0 {
			continue
		}
		result := results[0]

		// Check if content actually changed
		oldHash, hadHash := w.GetHash(relPath)
		if hadHash && oldHash == result.Hash {
			continue
		}
		w.SetHash(relPath, result.Hash)

		event := WatchEvent{Path: relPath, Operation: OpModify, Result: result}
		if op.Has(fsnotify.Create) || !hadHash {
			event.Operation = OpCreate
		}
		batch.Events = append(batch.Events, event)
	}

	if len(batch.Events) == 0 {
		return
	}
	w.sendBatch(ctx, batch)
}

// sendBatch hands a batch to the consumer
func (w *Watcher) sendBatch(ctx context.Context, batch Batch) {
	select {
	case w.batches <- batch:
		w.logger.Debug("Sent watch batch", "changes", len(batch.Events))
	case <-ctx.Done():
	}
}
