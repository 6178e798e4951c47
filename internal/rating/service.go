package rating

import (
	"context"
	"time"

	"github.com/facilmilha/facilmilha/internal/idgen"
	"github.com/facilmilha/facilmilha/internal/validation"
)

// Service enforces the rate-once-per-offer rule.
type Service struct {
	store  Store
	offers OfferLookup
}

// NewService creates a new rating service.
func NewService(store Store, offers OfferLookup) *Service {
	return &Service{store: store, offers: offers}
}

// Rate records raterID's score of the counterparty on a completed offer.
func (s *Service) Rate(ctx context.Context, offerID, raterID string, stars int, comment string) (*Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidStars
	}

	buyerID, sellerID, completed, err := s.offers.OfferParties(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, ErrNotCompleted
	}

	var ratedID string
	switch raterID {
	case buyerID:
		ratedID = sellerID
	case sellerID:
		ratedID = buyerID
	default:
		return nil, ErrNotParticipant
	}

	r := &Rating{
		ID:        idgen.WithPrefix("rat_"),
		OfferID:   offerID,
		RaterID:   raterID,
		RatedID:   ratedID,
		Stars:     stars,
		Comment:   validation.SanitizeString(comment, validation.MaxStringLength),
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Received returns ratings an account has received.
func (s *Service) Received(ctx context.Context, accountID string, limit int) ([]*Rating, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListForAccount(ctx, accountID, limit)
}

// SummaryFor returns an account's rating aggregate.
func (s *Service) SummaryFor(ctx context.Context, accountID string) (*Summary, error) {
	return s.store.SummaryForAccount(ctx, accountID)
}
