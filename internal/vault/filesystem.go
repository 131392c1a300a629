package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stv-go/internal/stv"
)

const tmpPrefix = ".tmp-"

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// Objects are plain files laid out by key:
//
//	<root>/
//	  objects/
//	    <host_id>/<label>/<path inside .stversions>
//	    <host_id>/journal/stv.db
type FileSystemVault struct {
	name       string
	root       string
	objectsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	objectsDir := filepath.Join(root, "objects")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}
	return &FileSystemVault{
		name:       name,
		root:       root,
		objectsDir: objectsDir,
	}, nil
}

func (v *FileSystemVault) objectPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(v.objectsDir, filepath.FromSlash(key)), nil
}

// PutObject stores the bytes read from r under key using an atomic write.
func (v *FileSystemVault) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	destPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	return v.writeFile(destPath, r, size)
}

// GetObject writes the object stored under key to w.
func (v *FileSystemVault) GetObject(ctx context.Context, key string, w io.Writer) error {
	srcPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

// StatObject returns size and modification time of key.
func (v *FileSystemVault) StatObject(ctx context.Context, key string) (*stv.ObjectInfo, error) {
	p, err := v.objectPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return &stv.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// DeleteObject removes key and any directories left empty above it.
func (v *FileSystemVault) DeleteObject(ctx context.Context, key string) error {
	p, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}

	for dir := filepath.Dir(p); dir != v.objectsDir && strings.HasPrefix(dir, v.objectsDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// ListObjects walks the objects directory and returns keys under prefix.
func (v *FileSystemVault) ListObjects(ctx context.Context, prefix string) ([]stv.ObjectInfo, error) {
	var out []stv.ObjectInfo
	err := filepath.WalkDir(v.objectsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(v.objectsDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, stv.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ValidateSetup verifies that the vault directories are accessible and writable.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.objectsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}

	probe, err := os.CreateTemp(v.objectsDir, tmpPrefix+"probe-*")
	if err != nil {
		return fmt.Errorf("vault is not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ stv.Vault = (*FileSystemVault)(nil)
