package passenger

import (
	"context"
	"time"

	"github.com/facilmilha/facilmilha/internal/idgen"
	"github.com/facilmilha/facilmilha/internal/validation"
)

// Service manages passenger lists with order-state-aware authorization.
type Service struct {
	store  Store
	access AccessChecker
}

// NewService creates a new passenger service.
func NewService(store Store, access AccessChecker) *Service {
	return &Service{store: store, access: access}
}

// PassengerInput is one traveler in a submitted list.
type PassengerInput struct {
	FullName  string    `json:"fullName" binding:"required"`
	Document  string    `json:"document" binding:"required"`
	BirthDate time.Time `json:"birthDate" binding:"required"`
}

// Replace swaps the request's passenger list. Only the request owner may
// submit, and only while the order hasn't reached issuance. Resubmitting
// replaces the previous list entirely.
func (s *Service) Replace(ctx context.Context, requestID, accountID string, inputs []PassengerInput) ([]*Passenger, error) {
	if len(inputs) == 0 {
		return nil, ErrNoPassengers
	}

	owner, err := s.access.IsRequestOwner(ctx, requestID, accountID)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, ErrForbidden
	}

	mutable, err := s.access.RequestMutable(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !mutable {
		return nil, ErrRequestFrozen
	}

	now := time.Now()
	passengers := make([]*Passenger, 0, len(inputs))
	for _, in := range inputs {
		if errs := validation.Validate(
			validation.Required("fullName", in.FullName),
			validation.Required("document", in.Document),
			validation.MaxLength("fullName", in.FullName, 200),
		); len(errs) > 0 {
			return nil, errs
		}

		passengers = append(passengers, &Passenger{
			ID:              idgen.WithPrefix("pax_"),
			FlightRequestID: requestID,
			FullName:        validation.SanitizeString(in.FullName, 200),
			Document:        validation.StripNonDigits(in.Document),
			BirthDate:       in.BirthDate,
			CreatedAt:       now,
		})
	}

	if err := s.store.ReplaceForRequest(ctx, requestID, passengers); err != nil {
		return nil, err
	}
	return passengers, nil
}

// List returns the request's passengers for an authorized viewer.
func (s *Service) List(ctx context.Context, requestID, accountID string) ([]*Passenger, error) {
	ok, err := s.access.CanViewPassengers(ctx, requestID, accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.store.ListForRequest(ctx, requestID)
}
