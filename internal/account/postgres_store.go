package account

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, acct *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, pix_key, pix_key_type, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, acct.ID, acct.Name, acct.Email, nullable(acct.PixKey), nullable(string(acct.PixKeyType)), nullable(acct.AvatarURL))
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, pix_key, pix_key_type, avatar_url, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, pix_key, pix_key_type, avatar_url, created_at, updated_at
		FROM accounts WHERE LOWER(email) = LOWER($1)
	`, email))
}

func (p *PostgresStore) Update(ctx context.Context, acct *Account) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET name = $2, pix_key = $3, pix_key_type = $4, avatar_url = $5, updated_at = NOW()
		WHERE id = $1
	`, acct.ID, acct.Name, nullable(acct.PixKey), nullable(string(acct.PixKeyType)), nullable(acct.AvatarURL))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PostgresStore) scanOne(row *sql.Row) (*Account, error) {
	var (
		acct    Account
		pixKey  sql.NullString
		keyType sql.NullString
		avatar  sql.NullString
	)
	err := row.Scan(&acct.ID, &acct.Name, &acct.Email, &pixKey, &keyType, &avatar,
		&acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	acct.PixKey = pixKey.String
	acct.PixKeyType = PixKeyType(keyType.String)
	acct.AvatarURL = avatar.String
	return &acct, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
