package crypto

import (
	"context"
	"sync"

	"github.com/bobboyms/docdb/pkg/dberrors"
)

// KeyManager wraps a KeyProvider with caching so the hot path never
// re-fetches key material per operation. It must be initialized once
// before getKey is usable.
type KeyManager struct {
	provider KeyProvider

	mu          sync.RWMutex
	initialized bool
	current     KeyMaterial
}

// NewKeyManager wraps provider.
func NewKeyManager(provider KeyProvider) *KeyManager {
	return &KeyManager{provider: provider}
}

// Initialize fetches and caches the current key. Calling it again is a
// no-op: the key is fetched once for the lifetime of the manager.
func (m *KeyManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	km, err := m.provider.FetchKey(ctx)
	if err != nil {
		return err
	}

	m.current = km
	m.initialized = true
	return nil
}

// GetKey returns the cached key. It fails with KeyUnavailableError if
// called before Initialize.
func (m *KeyManager) GetKey() (KeyMaterial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return KeyMaterial{}, &dberrors.KeyUnavailableError{Reason: "key manager not initialized"}
	}
	return m.current, nil
}

// Close releases the underlying provider and zeroes the cached key
// buffer so it doesn't linger in memory.
func (m *KeyManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.current.Key {
		m.current.Key[i] = 0
	}
	m.current = KeyMaterial{}
	m.initialized = false

	return m.provider.Close()
}
