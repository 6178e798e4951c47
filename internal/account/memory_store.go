package account

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory account store for demo/development mode.
type MemoryStore struct {
	accounts map[string]*Account
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
	}
}

func (m *MemoryStore) Create(ctx context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, acct := range m.accounts {
		if strings.EqualFold(acct.Email, email) {
			cp := *acct
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryStore) Update(ctx context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[acct.ID]; !ok {
		return ErrAccountNotFound
	}
	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}
