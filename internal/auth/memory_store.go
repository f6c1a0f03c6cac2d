package auth

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory API key store for demo/development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*APIKey
	byHash map[string]string // hash → ID
}

// NewMemoryStore creates a new in-memory key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*APIKey),
		byHash: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *key
	m.byID[key.ID] = &cp
	m.byHash[key.Hash] = key.ID
	return nil
}

func (m *MemoryStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) GetByAccount(_ context.Context, accountID string) ([]*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []*APIKey
	for _, k := range m.byID {
		if k.AccountID == accountID {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

func (m *MemoryStore) Update(_ context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[key.ID]; !ok {
		return ErrKeyNotFound
	}
	cp := *key
	m.byID[key.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	delete(m.byHash, key.Hash)
	delete(m.byID, id)
	return nil
}
