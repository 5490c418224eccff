// Package watcher watches the record database for out-of-band changes with
// fsnotify and triggers a drift check after a debounce window. The server's
// own writes keep the store and index in lockstep, so the check only rebuilds
// when an external edit made them disagree.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// DriftWatcher watches the directory holding the record database and invokes
// onChange once per burst of file events touching it.
type DriftWatcher struct {
	dbPath   string
	debounce time.Duration
	onChange func()
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewDriftWatcher creates a watcher for the database at dbPath. debounce <= 0
// uses the default window.
func NewDriftWatcher(dbPath string, debounce time.Duration, onChange func(), logger *zap.Logger) *DriftWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriftWatcher{
		dbPath:   dbPath,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *DriftWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	// Watch the containing directory: editors and sqlite replace or append
	// sidecar files (-wal, -journal) rather than rewriting one inode.
	dir := filepath.Dir(w.dbPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("drift watcher starting",
		zap.String("db", w.dbPath),
		zap.Duration("debounce", w.debounce))
	go w.run(ctx)
	return nil
}

func (w *DriftWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("drift watcher error", zap.Error(err))
			}
		}
	}
}

func (w *DriftWatcher) handleEvent(ev fsnotify.Event) {
	if !w.touchesDatabase(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("drift watcher event",
		zap.String("op", ev.Op.String()),
		zap.String("path", ev.Name))
	w.scheduleCheck()
}

// touchesDatabase reports whether path is the database file or one of its
// sidecars (records.db-wal, records.db-journal, ...).
func (w *DriftWatcher) touchesDatabase(path string) bool {
	base := filepath.Base(filepath.Clean(path))
	return strings.HasPrefix(base, filepath.Base(w.dbPath))
}

func (w *DriftWatcher) scheduleCheck() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Stop stops the watcher and releases resources.
func (w *DriftWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

// DriftCheck returns an onChange callback that rebuilds the index when the
// store record count and index size disagree. Counts match after the
// server's own writes, so those never trigger a rebuild.
func DriftCheck(
	logger *zap.Logger,
	countRecords func(ctx context.Context) (int64, error),
	indexSize func() int,
	rebuild func(ctx context.Context) (int, error),
) func() {
	return func() {
		ctx := context.Background()
		count, err := countRecords(ctx)
		if err != nil {
			logger.Warn("drift check: count failed", zap.Error(err))
			return
		}
		size := indexSize()
		if count == int64(size) {
			return
		}
		logger.Info("store and index drifted, rebuilding",
			zap.Int64("records", count),
			zap.Int("index_size", size))
		if _, err := rebuild(ctx); err != nil {
			logger.Error("drift rebuild failed", zap.Error(err))
		}
	}
}
