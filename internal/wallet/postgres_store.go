package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
//
// Balance columns carry CHECK constraints (>= 0), so overdrafts and
// inconsistent settlements surface as constraint violations inside the
// transaction rather than silently going negative.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateWallet(ctx context.Context, w *Wallet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (id, account_id, available, pending, frozen, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, w.ID, w.AccountID, w.Available, w.Pending, w.Frozen)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, walletID string) (*Wallet, error) {
	return scanWallet(p.db.QueryRowContext(ctx, `
		SELECT id, account_id, available, pending, frozen, updated_at
		FROM wallets WHERE id = $1
	`, walletID))
}

func (p *PostgresStore) GetByAccount(ctx context.Context, accountID string) (*Wallet, error) {
	return scanWallet(p.db.QueryRowContext(ctx, `
		SELECT id, account_id, available, pending, frozen, updated_at
		FROM wallets WHERE account_id = $1
	`, accountID))
}

func (p *PostgresStore) Credit(ctx context.Context, walletID string, txn *FinancialTransaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET pending = pending + $2, updated_at = NOW() WHERE id = $1
	`, walletID, txn.Amount)
	if err != nil {
		return fmt.Errorf("update pending balance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrWalletNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO financial_transactions (id, wallet_id, type, amount, status, available_at, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, txn.ID, walletID, txn.Type, txn.Amount, txn.Status, txn.AvailableAt, txn.Description)
	if err != nil {
		return fmt.Errorf("insert hold entry: %w", err)
	}

	return tx.Commit()
}

func (p *PostgresStore) Withdraw(ctx context.Context, walletID string, txn *FinancialTransaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The available >= 0 CHECK rejects overdrafts atomically.
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET available = available - $2, updated_at = NOW() WHERE id = $1
	`, walletID, txn.Amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("update available balance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrWalletNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO financial_transactions (id, wallet_id, type, amount, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, txn.ID, walletID, txn.Type, txn.Amount, txn.Status, txn.Description)
	if err != nil {
		return fmt.Errorf("insert withdrawal entry: %w", err)
	}

	return tx.Commit()
}

func (p *PostgresStore) Settle(ctx context.Context, txnID string, description string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock the entry row and settle only if still pending. The last read
	// before the write happens inside this transaction.
	var (
		walletID string
		amount   int64
		status   TransactionStatus
	)
	err = tx.QueryRowContext(ctx, `
		SELECT wallet_id, amount, status FROM financial_transactions
		WHERE id = $1 FOR UPDATE
	`, txnID).Scan(&walletID, &amount, &status)
	if err == sql.ErrNoRows {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusPending {
		return ErrAlreadySettled
	}

	if description != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE financial_transactions SET status = $2, description = $3, updated_at = NOW() WHERE id = $1
		`, txnID, StatusCompleted, description)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE financial_transactions SET status = $2, updated_at = NOW() WHERE id = $1
		`, txnID, StatusCompleted)
	}
	if err != nil {
		return fmt.Errorf("complete entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET pending = pending - $2, updated_at = NOW() WHERE id = $1
	`, walletID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("decrement pending balance: %w", err)
	}

	return tx.Commit()
}

func (p *PostgresStore) ListMatured(ctx context.Context, walletID string, before time.Time, limit int) ([]*FinancialTransaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, type, amount, status, available_at, description, created_at, updated_at
		FROM financial_transactions
		WHERE wallet_id = $1 AND status = $2 AND type = $3 AND available_at <= $4
		ORDER BY available_at ASC
		LIMIT $5
	`, walletID, StatusPending, TypeSaleHold, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (p *PostgresStore) ListWalletsWithMatured(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT wallet_id FROM financial_transactions
		WHERE status = $1 AND type = $2 AND available_at <= $3
		ORDER BY wallet_id
		LIMIT $4
	`, StatusPending, TypeSaleHold, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) ListHistory(ctx context.Context, walletID string, limit int) ([]*FinancialTransaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, type, amount, status, available_at, description, created_at, updated_at
		FROM financial_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.AccountID, &w.Available, &w.Pending, &w.Frozen, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanTransactions(rows *sql.Rows) ([]*FinancialTransaction, error) {
	var result []*FinancialTransaction
	for rows.Next() {
		var (
			txn         FinancialTransaction
			availableAt sql.NullTime
			description sql.NullString
		)
		if err := rows.Scan(&txn.ID, &txn.WalletID, &txn.Type, &txn.Amount, &txn.Status,
			&availableAt, &description, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, err
		}
		txn.AvailableAt = availableAt.Time
		txn.Description = description.String
		result = append(result, &txn)
	}
	return result, rows.Err()
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}
