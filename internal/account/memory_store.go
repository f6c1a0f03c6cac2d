package account

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory account store for demo/development.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // by ID
	emails   map[string]string   // email → ID
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		emails:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, exists := m.emails[email]; exists {
		return ErrEmailTaken
	}

	cp := *a
	m.accounts[a.ID] = &cp
	m.emails[email] = a.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; !ok {
		return ErrAccountNotFound
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) AdvanceOnboarding(_ context.Context, id string, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if a.OnboardingStep >= step {
		return nil
	}
	a.OnboardingStep = step
	a.UpdatedAt = time.Now()
	return nil
}
