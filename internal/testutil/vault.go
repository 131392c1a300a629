package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"stv-go/internal/stv"
	"stv-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// FailingVault wraps a Vault and fails PutObject for keys containing any of
// the configured substrings. It counts uploads that reached the inner vault.
type FailingVault struct {
	stv.Vault
	FailKeys []string

	mu   sync.Mutex
	puts int
}

// NewFailingVault wraps inner.
func NewFailingVault(inner stv.Vault, failKeys ...string) *FailingVault {
	return &FailingVault{Vault: inner, FailKeys: failKeys}
}

func (v *FailingVault) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	for _, k := range v.FailKeys {
		if strings.Contains(key, k) {
			return errors.New("injected upload failure")
		}
	}
	if err := v.Vault.PutObject(ctx, key, r, size); err != nil {
		return err
	}
	v.mu.Lock()
	v.puts++
	v.mu.Unlock()
	return nil
}

// Puts returns the number of successful uploads.
func (v *FailingVault) Puts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.puts
}
