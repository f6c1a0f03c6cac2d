package billing

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory billing store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // by tenant ID
}

// NewMemoryStore creates a new in-memory billing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Get(_ context.Context, tenantID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[tenantID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) FindByRemoteRef(_ context.Context, subscriptionID, customerID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if (subscriptionID != "" && rec.StripeSubscriptionID == subscriptionID) ||
			(customerID != "" && rec.StripeCustomerID == customerID) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) Upsert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.records[rec.TenantID] = &cp
	return nil
}
