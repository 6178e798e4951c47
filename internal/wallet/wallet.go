// Package wallet implements the escrow ledger: per-account balances and the
// financial transaction log.
//
// Flow:
//  1. Buyer confirms receipt → seller's pending balance is credited together
//     with a SALE_HOLD entry carrying a maturity timestamp (5-day hold)
//  2. The payout sweeper settles matured holds: the entry completes and
//     pending decreases (funds left the platform, available is untouched)
//  3. User-initiated withdrawals debit available synchronously and record a
//     completed WITHDRAWAL entry
//
// Balances move only through the Store's transactional primitives. Application
// code never reads a balance, computes, and writes it back.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facilmilha/facilmilha/internal/idgen"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("financial transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient available funds")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadySettled      = errors.New("transaction already settled")
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TypeSaleHold   TransactionType = "SALE_HOLD"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
)

// Wallet holds an account's balances in centavos.
// Invariant: available, pending and frozen are never negative.
type Wallet struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Available int64     `json:"availableCentavos"`
	Pending   int64     `json:"pendingCentavos"`
	Frozen    int64     `json:"frozenCentavos"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FinancialTransaction is a ledger entry. Append-mostly: the only mutation
// ever applied is PENDING → COMPLETED settlement.
type FinancialTransaction struct {
	ID          string            `json:"id"`
	WalletID    string            `json:"walletId"`
	Type        TransactionType   `json:"type"`
	Amount      int64             `json:"amountCentavos"`
	Status      TransactionStatus `json:"status"`
	AvailableAt time.Time         `json:"availableAt,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Store persists wallets and their ledger entries. Each mutating method is a
// single atomic transaction: the balance change and the entry row commit
// together or not at all.
type Store interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	Get(ctx context.Context, walletID string) (*Wallet, error)
	GetByAccount(ctx context.Context, accountID string) (*Wallet, error)

	// Credit increments pending and inserts the given hold entry.
	Credit(ctx context.Context, walletID string, txn *FinancialTransaction) error
	// Withdraw decrements available (ErrInsufficientFunds on overdraft) and
	// inserts the given completed entry.
	Withdraw(ctx context.Context, walletID string, txn *FinancialTransaction) error
	// Settle marks a pending entry completed and decrements pending by its
	// amount. ErrAlreadySettled if the entry is not pending.
	Settle(ctx context.Context, txnID string, description string) error

	ListMatured(ctx context.Context, walletID string, before time.Time, limit int) ([]*FinancialTransaction, error)
	ListWalletsWithMatured(ctx context.Context, before time.Time, limit int) ([]string, error)
	ListHistory(ctx context.Context, walletID string, limit int) ([]*FinancialTransaction, error)
}

// Service implements escrow ledger business logic.
type Service struct {
	store Store
}

// NewService creates a new wallet service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying store to collaborators that need its
// transactional primitives (the payout sweeper).
func (s *Service) Store() Store {
	return s.store
}

// Get returns a wallet by ID.
func (s *Service) Get(ctx context.Context, walletID string) (*Wallet, error) {
	return s.store.Get(ctx, walletID)
}

// GetByAccount returns the wallet owned by an account.
func (s *Service) GetByAccount(ctx context.Context, accountID string) (*Wallet, error) {
	return s.store.GetByAccount(ctx, accountID)
}

// Credit places amount on the account's pending balance under a hold that
// matures after holdDays. The pending increment and the SALE_HOLD entry are
// committed in one transaction.
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, holdDays int, description string) (*FinancialTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.store.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &FinancialTransaction{
		ID:          idgen.WithPrefix("txn_"),
		WalletID:    w.ID,
		Type:        TypeSaleHold,
		Amount:      amount,
		Status:      StatusPending,
		AvailableAt: now.AddDate(0, 0, holdDays),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Credit(ctx, w.ID, txn); err != nil {
		return nil, fmt.Errorf("credit wallet %s: %w", w.ID, err)
	}
	return txn, nil
}

// Withdraw synchronously debits the available balance and records a completed
// WITHDRAWAL entry. The debit is a promise to pay: it is not gated on the
// external payout call, unlike sweeper-driven release.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount int64, pixKey, keyType string) (*FinancialTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.store.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &FinancialTransaction{
		ID:          idgen.WithPrefix("txn_"),
		WalletID:    w.ID,
		Type:        TypeWithdrawal,
		Amount:      amount,
		Status:      StatusCompleted,
		Description: fmt.Sprintf("Withdrawal to PIX key (%s)", keyType),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Withdraw(ctx, w.ID, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// History returns the most recent ledger entries for an account's wallet.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]*FinancialTransaction, error) {
	w, err := s.store.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, w.ID, limit)
}
