package stv

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Vault implementations when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one archived object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Vault is an object store for archived versions and journal snapshots.
// Keys are slash-separated. Streams are used so large versions are never
// held in memory.
type Vault interface {
	// PutObject stores size bytes read from r under key, replacing any existing object.
	PutObject(ctx context.Context, key string, r io.Reader, size int64) error

	// GetObject writes the object stored under key to w.
	GetObject(ctx context.Context, key string, w io.Writer) error

	// StatObject returns metadata for key, or ErrObjectNotFound.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)

	// DeleteObject removes key. Deleting a missing key returns ErrObjectNotFound.
	DeleteObject(ctx context.Context, key string) error

	// ListObjects returns every object whose key starts with prefix, sorted by key.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// ValidateSetup verifies that the vault is reachable and usable.
	ValidateSetup(ctx context.Context) error
}
