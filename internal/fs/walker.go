// Package fs walks synced folders on an afero.Fs and confines caller paths to their root.
package fs

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Entry is a regular file or directory found by a Walker.
type Entry struct {
	Path    string // root joined with RelPath, in OS form
	RelPath string // slash-separated path relative to the walk root
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// WalkStats summarizes a walk.
type WalkStats struct {
	Dirs    int
	Files   int
	Skipped int // directories that could not be read
}

// WalkOptions controls which entries a Walker excludes.
type WalkOptions struct {
	// SkipHidden excludes every entry whose name starts with '.'. The check is on
	// the entry name only, never on the root path.
	SkipHidden bool

	// ExcludeDirs lists directory names that are never descended into.
	ExcludeDirs []string

	// Ignore holds glob patterns, see IgnoreMatcher.
	Ignore []string

	// FollowFileLinks yields symlinks whose target is a regular file, with the
	// target's size and mtime. Links to directories are still not followed.
	FollowFileLinks bool
}

// WalkFunc is called for every directory (before its children) and every
// regular file. Returning a non-nil error stops the walk.
type WalkFunc func(e Entry) error

// Walker traverses a directory tree depth-first on an afero.Fs.
// Symlinks, devices, pipes and sockets are never yielded, and directory links
// are never followed, so the walk cannot cycle. Unreadable directories are
// skipped and counted.
type Walker struct {
	fs          afero.Fs
	skipHidden  bool
	followLinks bool
	excludeDirs map[string]bool
	ignore      *IgnoreMatcher
}

// NewWalker creates a Walker over fsys.
func NewWalker(fsys afero.Fs, opts WalkOptions) *Walker {
	exclude := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		exclude[name] = true
	}
	return &Walker{
		fs:          fsys,
		skipHidden:  opts.SkipHidden,
		followLinks: opts.FollowFileLinks,
		excludeDirs: exclude,
		ignore:      NewIgnoreMatcher(opts.Ignore),
	}
}

// Walk visits everything below root. The root itself is not passed to fn.
// A missing or unreadable root yields an empty walk with Skipped = 1.
func (w *Walker) Walk(root string, fn WalkFunc) (WalkStats, error) {
	var stats WalkStats
	err := w.walkDir(root, "", fn, &stats)
	return stats, err
}

func (w *Walker) walkDir(dir, rel string, fn WalkFunc, stats *WalkStats) error {
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		stats.Skipped++
		return nil
	}

	for _, info := range infos {
		name := info.Name()
		if w.excluded(name, info) {
			continue
		}

		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if w.ignore.Match(childRel) {
			continue
		}

		path := filepath.Join(dir, name)
		if w.followLinks && info.Mode()&os.ModeSymlink != 0 {
			if target, err := w.fs.Stat(path); err == nil && target.Mode().IsRegular() {
				info = target
			}
		}

		e := newEntry(path, childRel, info)
		switch {
		case info.IsDir():
			stats.Dirs++
			if err := fn(e); err != nil {
				return err
			}
			if err := w.walkDir(e.Path, childRel, fn, stats); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			stats.Files++
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) excluded(name string, info os.FileInfo) bool {
	if w.skipHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return info.IsDir() && w.excludeDirs[name]
}

func newEntry(path, rel string, info os.FileInfo) Entry {
	return Entry{
		Path:    path,
		RelPath: rel,
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// Lstat reads path without following a final symlink when fsys supports it.
func Lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// RemoveEmptyDirs removes dir and every directory below it that is empty once
// its children have been processed, bottom-up. Removal failures (including
// "directory not empty") are ignored. It returns how many directories were
// removed.
func RemoveEmptyDirs(fsys afero.Fs, dir string) int {
	info, err := fsys.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0
	}

	removed := 0
	if infos, err := afero.ReadDir(fsys, dir); err == nil {
		for _, child := range infos {
			if child.IsDir() {
				removed += RemoveEmptyDirs(fsys, filepath.Join(dir, child.Name()))
			}
		}
	}

	if isEmpty, err := afero.IsEmpty(fsys, dir); err == nil && isEmpty {
		if fsys.Remove(dir) == nil {
			removed++
		}
	}
	return removed
}
