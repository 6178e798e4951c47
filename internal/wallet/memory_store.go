package wallet

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory escrow ledger store for demo/development mode.
// A single mutex serializes all mutations, standing in for the database
// transaction that the Postgres store relies on.
type MemoryStore struct {
	wallets map[string]*Wallet
	txns    map[string]*FinancialTransaction
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		txns:    make(map[string]*FinancialTransaction),
	}
}

func (m *MemoryStore) CreateWallet(ctx context.Context, w *Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	m.wallets[w.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, walletID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) GetByAccount(ctx context.Context, accountID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.wallets {
		if w.AccountID == accountID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ErrWalletNotFound
}

func (m *MemoryStore) Credit(ctx context.Context, walletID string, txn *FinancialTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}

	w.Pending += txn.Amount
	w.UpdatedAt = time.Now()

	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *MemoryStore) Withdraw(ctx context.Context, walletID string, txn *FinancialTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	if txn.Amount > w.Available {
		return ErrInsufficientFunds
	}

	w.Available -= txn.Amount
	w.UpdatedAt = time.Now()

	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *MemoryStore) Settle(ctx context.Context, txnID string, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[txnID]
	if !ok {
		return ErrTransactionNotFound
	}
	if txn.Status != StatusPending {
		return ErrAlreadySettled
	}

	w, ok := m.wallets[txn.WalletID]
	if !ok {
		return ErrWalletNotFound
	}
	if txn.Amount > w.Pending {
		// The ledger is inconsistent; refuse rather than go negative.
		return ErrInsufficientFunds
	}

	txn.Status = StatusCompleted
	if description != "" {
		txn.Description = description
	}
	txn.UpdatedAt = time.Now()

	w.Pending -= txn.Amount
	w.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListMatured(ctx context.Context, walletID string, before time.Time, limit int) ([]*FinancialTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*FinancialTransaction
	for _, txn := range m.txns {
		if txn.WalletID != walletID || txn.Status != StatusPending || txn.Type != TypeSaleHold {
			continue
		}
		if txn.AvailableAt.After(before) {
			continue
		}
		cp := *txn
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AvailableAt.Before(result[j].AvailableAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListWalletsWithMatured(ctx context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	for _, txn := range m.txns {
		if txn.Status != StatusPending || txn.Type != TypeSaleHold || txn.AvailableAt.After(before) {
			continue
		}
		if !seen[txn.WalletID] {
			seen[txn.WalletID] = true
			result = append(result, txn.WalletID)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) ListHistory(ctx context.Context, walletID string, limit int) ([]*FinancialTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*FinancialTransaction
	for _, txn := range m.txns {
		if txn.WalletID != walletID {
			continue
		}
		cp := *txn
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
