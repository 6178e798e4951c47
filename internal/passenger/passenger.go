// Package passenger stores traveler records attached to flight requests.
//
// Passenger data is personal data. It is never written to logs, and read
// access is gated through an AccessChecker so sellers only see travelers
// once the buyer's payment is confirmed.
package passenger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRequestNotFound = errors.New("flight request not found")
	ErrRequestFrozen   = errors.New("passenger list can no longer change")
	ErrForbidden       = errors.New("not allowed to access passengers")
	ErrNoPassengers    = errors.New("at least one passenger is required")
)

// Passenger is one traveler on a flight request.
type Passenger struct {
	ID              string    `json:"id"`
	FlightRequestID string    `json:"flightRequestId"`
	FullName        string    `json:"fullName"`
	Document        string    `json:"document"`
	BirthDate       time.Time `json:"birthDate"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists passenger records.
type Store interface {
	// ReplaceForRequest swaps the full passenger list of a request in one
	// transaction. A failed replace leaves the previous list intact.
	ReplaceForRequest(ctx context.Context, requestID string, passengers []*Passenger) error

	ListForRequest(ctx context.Context, requestID string) ([]*Passenger, error)
}

// AccessChecker answers authorization questions about a flight request.
// Implemented by the order service.
type AccessChecker interface {
	IsRequestOwner(ctx context.Context, requestID, accountID string) (bool, error)
	RequestMutable(ctx context.Context, requestID string) (bool, error)
	CanViewPassengers(ctx context.Context, requestID, accountID string) (bool, error)
}
