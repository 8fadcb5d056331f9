package keystore

import (
	"context"
	"sync"
)

// MemoryStore keeps the key material in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	km *KeyMaterial
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*KeyMaterial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.km == nil {
		return nil, ErrNotFound
	}
	return m.km, nil
}

func (m *MemoryStore) Save(ctx context.Context, km *KeyMaterial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := km.Validate(); err != nil {
		return err
	}

	snapshot := *km

	m.mu.Lock()
	m.km = &snapshot
	m.mu.Unlock()

	return nil
}
