package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. Pair transitions run
// in a single transaction with the status re-checked in the UPDATE's WHERE
// clause, so a lost race surfaces as ErrInvalidStatus.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, buyer_id, origin, destination, depart_date, return_date, trip_type,
	passengers_count, flexibility, observation, status, created_at, updated_at`

const offerColumns = `id, flight_request_id, seller_id, amount, fee_buyer, fee_seller, total_price,
	net_amount, airline, emission_deadline, observation, status, pix_code, pix_image, payment_id,
	proof_url, pnr, accepted_at, payment_expires_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*FlightRequest, error) {
	var r FlightRequest
	var returnDate sql.NullTime
	var observation sql.NullString
	err := row.Scan(&r.ID, &r.BuyerID, &r.Origin, &r.Destination, &r.DepartDate, &returnDate,
		&r.TripType, &r.PassengersCount, &r.Flexibility, &observation, &r.Status,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if returnDate.Valid {
		t := returnDate.Time
		r.ReturnDate = &t
	}
	r.Observation = observation.String
	return &r, nil
}

func scanOffer(row interface{ Scan(...interface{}) error }) (*Offer, error) {
	var o Offer
	var emissionDeadline, observation, pixCode, pixImage, paymentID, proofURL, pnr sql.NullString
	var acceptedAt, paymentExpiresAt sql.NullTime
	err := row.Scan(&o.ID, &o.FlightRequestID, &o.SellerID, &o.Amount, &o.FeeBuyer, &o.FeeSeller,
		&o.TotalPrice, &o.NetAmount, &o.Airline, &emissionDeadline, &observation, &o.Status,
		&pixCode, &pixImage, &paymentID, &proofURL, &pnr, &acceptedAt, &paymentExpiresAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.EmissionDeadline = emissionDeadline.String
	o.Observation = observation.String
	o.PixCode = pixCode.String
	o.PixImage = pixImage.String
	o.PaymentID = paymentID.String
	o.ProofURL = proofURL.String
	o.PNR = pnr.String
	if acceptedAt.Valid {
		t := acceptedAt.Time
		o.AcceptedAt = &t
	}
	if paymentExpiresAt.Valid {
		t := paymentExpiresAt.Time
		o.PaymentExpiresAt = &t
	}
	return &o, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *PostgresStore) CreateRequest(ctx context.Context, r *FlightRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flight_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.BuyerID, r.Origin, r.Destination, r.DepartDate, nullableTime(r.ReturnDate),
		r.TripType, r.PassengersCount, r.Flexibility, nullable(r.Observation), r.Status,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert flight request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*FlightRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM flight_requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flight request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListOpenRequests(ctx context.Context, limit int) ([]*FlightRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM flight_requests
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
		RequestOpen, limit)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) ListRequestsByBuyer(ctx context.Context, buyerID string) ([]*FlightRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM flight_requests
		WHERE buyer_id = $1 ORDER BY created_at DESC`,
		buyerID)
	if err != nil {
		return nil, fmt.Errorf("list requests by buyer: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]*FlightRequest, error) {
	var out []*FlightRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flight request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateOffer(ctx context.Context, o *Offer) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (id, flight_request_id, seller_id, amount, fee_buyer, fee_seller,
			total_price, net_amount, airline, emission_deadline, observation, status,
			created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		WHERE EXISTS (SELECT 1 FROM flight_requests WHERE id = $2 AND status = $15)`,
		o.ID, o.FlightRequestID, o.SellerID, o.Amount, o.FeeBuyer, o.FeeSeller,
		o.TotalPrice, o.NetAmount, o.Airline, nullable(o.EmissionDeadline),
		nullable(o.Observation), o.Status, o.CreatedAt, o.UpdatedAt, RequestOpen)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrRequestNotFound
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRequest(ctx, o.FlightRequestID); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOffersByRequest(ctx context.Context, requestID string) ([]*Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE flight_request_id = $1 ORDER BY created_at ASC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("list offers by request: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (s *PostgresStore) ListOffersBySeller(ctx context.Context, sellerID string) ([]*Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE seller_id = $1 ORDER BY created_at DESC`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("list offers by seller: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

func collectOffers(rows *sql.Rows) ([]*Offer, error) {
	var out []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// pairTransition runs fn inside a transaction after locking the offer row and
// its request row in a fixed order.
func (s *PostgresStore) pairTransition(ctx context.Context, offerID string, fn func(tx *sql.Tx, o *Offer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, offerID)
	o, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return ErrOfferNotFound
	}
	if err != nil {
		return fmt.Errorf("lock offer: %w", err)
	}

	var reqStatus RequestStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM flight_requests WHERE id = $1 FOR UPDATE`,
		o.FlightRequestID).Scan(&reqStatus)
	if err == sql.ErrNoRows {
		return ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("lock flight request: %w", err)
	}

	if err := fn(tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) AcceptOffer(ctx context.Context, offerID string, acceptedAt, paymentExpiresAt time.Time) error {
	return s.pairTransition(ctx, offerID, func(tx *sql.Tx, o *Offer) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE offers SET status = $1, accepted_at = $2, payment_expires_at = $3, updated_at = now()
			WHERE id = $4 AND status = $5`,
			OfferAccepted, acceptedAt, paymentExpiresAt, offerID, OfferPending)
		if err != nil {
			return fmt.Errorf("accept offer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInvalidStatus
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE flight_requests SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3`,
			RequestOfferAccepted, o.FlightRequestID, RequestOpen)
		if err != nil {
			return fmt.Errorf("mark request accepted: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInvalidStatus
		}
		return nil
	})
}

func (s *PostgresStore) RejectOffer(ctx context.Context, offerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		OfferRejected, offerID, OfferPending)
	if err != nil {
		return fmt.Errorf("reject offer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetOffer(ctx, offerID); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) CancelRequest(ctx context.Context, requestID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE flight_requests SET status = $1, updated_at = now()
		WHERE id = $2 AND status NOT IN ($3, $4, $5)`,
		RequestCanceled, requestID, RequestPaid, RequestIssued, RequestCompleted)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRequest(ctx, requestID); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) AttachCharge(ctx context.Context, offerID, pixCode, pixImage, paymentID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers SET pix_code = $1, pix_image = $2, payment_id = $3, updated_at = now()
		WHERE id = $4 AND status = $5`,
		nullable(pixCode), nullable(pixImage), nullable(paymentID), offerID, OfferAccepted)
	if err != nil {
		return fmt.Errorf("attach charge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetOffer(ctx, offerID); err != nil {
			return err
		}
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) error {
	return s.pairTransition(ctx, offerID, func(tx *sql.Tx, o *Offer) error {
		if o.PaymentConfirmed() {
			return ErrAlreadyPaid
		}
		if o.Status != OfferAccepted {
			return ErrInvalidStatus
		}

		paymentID := o.PaymentID
		if gatewayTransactionID != "" {
			paymentID = gatewayTransactionID
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE offers SET status = $1, payment_id = $2, updated_at = now()
			WHERE id = $3`,
			OfferPaidByBuyer, nullable(paymentID), offerID); err != nil {
			return fmt.Errorf("mark offer paid: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE flight_requests SET status = $1, updated_at = now()
			WHERE id = $2`,
			RequestPaid, o.FlightRequestID); err != nil {
			return fmt.Errorf("mark request paid: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) MarkIssued(ctx context.Context, offerID, pnr, proofURL string) error {
	return s.pairTransition(ctx, offerID, func(tx *sql.Tx, o *Offer) error {
		if o.Status != OfferPaidByBuyer {
			return ErrInvalidStatus
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE offers SET status = $1, pnr = $2, proof_url = $3, updated_at = now()
			WHERE id = $4`,
			OfferTicketIssued, pnr, nullable(proofURL), offerID); err != nil {
			return fmt.Errorf("mark offer issued: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE flight_requests SET status = $1, updated_at = now()
			WHERE id = $2`,
			RequestIssued, o.FlightRequestID); err != nil {
			return fmt.Errorf("mark request issued: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CompleteOffer(ctx context.Context, offerID string) error {
	return s.pairTransition(ctx, offerID, func(tx *sql.Tx, o *Offer) error {
		if o.Status != OfferTicketIssued {
			return ErrInvalidStatus
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE offers SET status = $1, updated_at = now()
			WHERE id = $2`,
			OfferCompleted, offerID); err != nil {
			return fmt.Errorf("complete offer: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE flight_requests SET status = $1, updated_at = now()
			WHERE id = $2`,
			RequestCompleted, o.FlightRequestID); err != nil {
			return fmt.Errorf("complete request: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ExpireAccepted(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM offers
		WHERE status = $1 AND payment_expires_at IS NOT NULL AND payment_expires_at <= $2
		ORDER BY payment_expires_at ASC LIMIT $3`,
		OfferAccepted, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue offers: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan overdue offer id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Each offer expires in its own transaction so one failure doesn't hold
	// up the rest of the batch.
	var expired []*Offer
	for _, id := range ids {
		err := s.pairTransition(ctx, id, func(tx *sql.Tx, o *Offer) error {
			if o.Status != OfferAccepted || o.PaymentExpiresAt == nil || o.PaymentExpiresAt.After(now) {
				return ErrInvalidStatus
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE offers SET status = $1, updated_at = now()
				WHERE id = $2`,
				OfferExpired, id); err != nil {
				return fmt.Errorf("expire offer: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE flight_requests SET status = $1, updated_at = now()
				WHERE id = $2 AND status = $3`,
				RequestOpen, o.FlightRequestID, RequestOfferAccepted); err != nil {
				return fmt.Errorf("reopen request: %w", err)
			}
			o.Status = OfferExpired
			expired = append(expired, o)
			return nil
		})
		if err == ErrInvalidStatus {
			continue
		}
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}
