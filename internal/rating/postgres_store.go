package rating

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. The rate-once rule is
// backed by a unique index on (offer_id, rater_id).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed rating store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *Rating) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (id, offer_id, rater_id, rated_id, stars, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.OfferID, r.RaterID, r.RatedID, r.Stars,
		sql.NullString{String: r.Comment, Valid: r.Comment != ""}, r.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyRated
		}
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForAccount(ctx context.Context, accountID string, limit int) ([]*Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, offer_id, rater_id, rated_id, stars, comment, created_at
		FROM ratings WHERE rated_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var out []*Rating
	for rows.Next() {
		var r Rating
		var comment sql.NullString
		if err := rows.Scan(&r.ID, &r.OfferID, &r.RaterID, &r.RatedID, &r.Stars,
			&comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.Comment = comment.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SummaryForAccount(ctx context.Context, accountID string) (*Summary, error) {
	sum := &Summary{AccountID: accountID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(stars), 0)
		FROM ratings WHERE rated_id = $1`,
		accountID).Scan(&sum.Count, &sum.Average)
	if err != nil {
		return nil, fmt.Errorf("rating summary: %w", err)
	}
	return sum, nil
}
