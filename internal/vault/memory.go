package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"stv-go/internal/stv"
)

type memoryObject struct {
	data     []byte
	modified time.Time
}

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for tests and dry runs. Safe for concurrent use.
type MemoryVault struct {
	name    string
	objects map[string]memoryObject
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// PutObject stores the bytes read from r under key.
func (m *MemoryVault) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, modified: m.now()}
	return nil
}

// GetObject writes the object stored under key to w.
func (m *MemoryVault) GetObject(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// StatObject returns size and modification time of key.
func (m *MemoryVault) StatObject(ctx context.Context, key string) (*stv.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
	}
	return &stv.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified}, nil
}

// DeleteObject removes key.
func (m *MemoryVault) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", stv.ErrObjectNotFound, key)
	}
	delete(m.objects, key)
	return nil
}

// ListObjects returns all objects under prefix, sorted by key.
func (m *MemoryVault) ListObjects(ctx context.Context, prefix string) ([]stv.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stv.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, stv.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ValidateSetup always succeeds for memory vaults.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ stv.Vault = (*MemoryVault)(nil)
