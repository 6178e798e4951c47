// Package rating lets the two parties of a completed order rate each other.
package rating

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyRated   = errors.New("offer already rated by this account")
	ErrNotCompleted   = errors.New("order is not completed")
	ErrNotParticipant = errors.New("account is not a party of this offer")
	ErrInvalidStars   = errors.New("stars must be between 1 and 5")
)

// Rating is one party's score of the other after a completed order.
type Rating struct {
	ID        string    `json:"id"`
	OfferID   string    `json:"offerId"`
	RaterID   string    `json:"raterId"`
	RatedID   string    `json:"ratedId"`
	Stars     int       `json:"stars"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary aggregates an account's received ratings.
type Summary struct {
	AccountID string  `json:"accountId"`
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
}

// Store persists ratings.
type Store interface {
	// Create inserts a rating. ErrAlreadyRated when the (offer, rater) pair
	// already exists.
	Create(ctx context.Context, r *Rating) error

	ListForAccount(ctx context.Context, accountID string, limit int) ([]*Rating, error)
	SummaryForAccount(ctx context.Context, accountID string) (*Summary, error)
}

// OfferLookup resolves who may rate an offer. Implemented by the order service.
type OfferLookup interface {
	OfferParties(ctx context.Context, offerID string) (buyerID, sellerID string, completed bool, err error)
}
