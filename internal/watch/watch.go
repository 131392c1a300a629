// Package watch reports conflict copies as they appear in or disappear from
// a synced folder.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	stvfs "stv-go/internal/fs"
	"stv-go/internal/stv"
)

// DefaultDebounce is how long the folder must stay quiet before a rescan.
const DefaultDebounce = 500 * time.Millisecond

// Scanner is the part of stv.Service the watcher depends on.
type Scanner interface {
	ScanConflicts(folder string) ([]stv.ConflictRecord, stvfs.WalkStats)
	WatchDirs(folder string) []string
}

var _ Scanner = (*stv.Service)(nil)

// Change lists the conflicts that differ from the previous scan.
type Change struct {
	Appeared    []stv.ConflictRecord
	Disappeared []stv.ConflictRecord
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.Appeared) == 0 && len(c.Disappeared) == 0
}

// Watcher rescans a folder after filesystem activity settles.
type Watcher struct {
	scanner  Scanner
	folder   string
	debounce time.Duration
	logger   stv.Logger

	known map[string]stv.ConflictRecord
}

// New creates a Watcher for folder. A debounce of zero uses DefaultDebounce.
func New(scanner Scanner, folder string, debounce time.Duration, logger stv.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		scanner:  scanner,
		folder:   folder,
		debounce: debounce,
		logger:   logger,
		known:    make(map[string]stv.ConflictRecord),
	}
}

// Run watches until ctx is cancelled. The initial scan is reported as a
// change with every existing conflict in Appeared; after that onChange is
// only called when the set of conflicts actually changed.
func (w *Watcher) Run(ctx context.Context, onChange func(Change)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.folder); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.folder, err)
	}
	w.addWatches(fsw)

	if c := w.rescan(); !c.Empty() {
		onChange(c)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.watchable(event.Name) {
				w.addWatches(fsw)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "folder", w.folder, "error", err)

		case <-timer.C:
			if c := w.rescan(); !c.Empty() {
				onChange(c)
			}
		}
	}
}

// addWatches registers every directory a scan would visit. Adding an
// already watched path is a no-op in fsnotify.
func (w *Watcher) addWatches(fsw *fsnotify.Watcher) {
	for _, dir := range w.scanner.WatchDirs(w.folder) {
		if err := fsw.Add(dir); err != nil {
			w.logger.Debug("cannot watch directory", "dir", dir, "error", err)
		}
	}
}

// watchable reports whether a newly created path is a directory the scanner
// would descend into.
func (w *Watcher) watchable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

func (w *Watcher) rescan() Change {
	records, _ := w.scanner.ScanConflicts(w.folder)
	c, next := diff(w.known, records)
	w.known = next
	if !c.Empty() {
		w.logger.Info("conflicts changed", "folder", w.folder, "appeared", len(c.Appeared), "disappeared", len(c.Disappeared))
	}
	return c
}

// diff compares prev with the records of a new scan. Records are keyed by
// relative path. Both sides of the result are sorted by path.
func diff(prev map[string]stv.ConflictRecord, records []stv.ConflictRecord) (Change, map[string]stv.ConflictRecord) {
	next := make(map[string]stv.ConflictRecord, len(records))
	var c Change
	for _, r := range records {
		next[r.RelativePath] = r
		if _, ok := prev[r.RelativePath]; !ok {
			c.Appeared = append(c.Appeared, r)
		}
	}
	for p, r := range prev {
		if _, ok := next[p]; !ok {
			c.Disappeared = append(c.Disappeared, r)
		}
	}
	byPath := func(rs []stv.ConflictRecord) func(i, j int) bool {
		return func(i, j int) bool { return rs[i].RelativePath < rs[j].RelativePath }
	}
	sort.Slice(c.Appeared, byPath(c.Appeared))
	sort.Slice(c.Disappeared, byPath(c.Disappeared))
	return c, next
}
