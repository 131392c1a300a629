package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// FixtureFile describes one file in a test tree.
type FixtureFile struct {
	Content string
	ModTime time.Time // zero leaves the filesystem default
}

// WriteTree creates files below root on fsys. Keys are slash-separated paths
// relative to root.
func WriteTree(t *testing.T, fsys afero.Fs, root string, files map[string]FixtureFile) {
	t.Helper()
	for rel, f := range files {
		WriteFile(t, fsys, filepath.Join(root, filepath.FromSlash(rel)), f.Content, f.ModTime)
	}
}

// WriteFile creates one file, its parent directories, and sets its mtime.
func WriteFile(t *testing.T, fsys afero.Fs, path, content string, modTime time.Time) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !modTime.IsZero() {
		if err := fsys.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// Exists reports whether path exists on fsys.
func Exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return ok
}
