package passenger

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed passenger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReplaceForRequest(ctx context.Context, requestID string, passengers []*Passenger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM passengers WHERE flight_request_id = $1`, requestID); err != nil {
		return fmt.Errorf("clear passengers: %w", err)
	}

	for _, p := range passengers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO passengers (id, flight_request_id, full_name, document, birth_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.FlightRequestID, p.FullName, p.Document, p.BirthDate, p.CreatedAt); err != nil {
			return fmt.Errorf("insert passenger: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListForRequest(ctx context.Context, requestID string) ([]*Passenger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flight_request_id, full_name, document, birth_date, created_at
		FROM passengers WHERE flight_request_id = $1 ORDER BY full_name ASC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("list passengers: %w", err)
	}
	defer rows.Close()

	var out []*Passenger
	for rows.Next() {
		var p Passenger
		if err := rows.Scan(&p.ID, &p.FlightRequestID, &p.FullName, &p.Document,
			&p.BirthDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan passenger: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
