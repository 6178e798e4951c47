// Package order owns the marketplace order lifecycle: flight requests,
// offers against them, and every status transition between "posted" and
// "completed".
//
// Flow:
//  1. Buyer posts a FlightRequest (OPEN)
//  2. Sellers post Offers (PENDING); many may coexist
//  3. Buyer accepts one → offer ACCEPTED, request OFFER_ACCEPTED (exclusive)
//  4. Gateway confirms payment → PAID_BY_BUYER / PAID
//  5. Seller submits locator + proof → TICKET_ISSUED / ISSUED
//  6. Buyer confirms receipt → COMPLETED, seller's wallet credited under hold
//
// Accepted-but-unpaid offers expire after the payment window and the request
// reopens. Paid orders can never be cancelled.
package order

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRequestNotFound = errors.New("flight request not found")
	ErrOfferNotFound   = errors.New("offer not found")
	ErrUnauthorized    = errors.New("not authorized for this order operation")
	ErrInvalidStatus   = errors.New("invalid status for this operation")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidPNR      = errors.New("locator must be exactly 6 alphanumeric characters")
	ErrAlreadyPaid     = errors.New("offer already paid")
)

// RequestStatus is the lifecycle state of a FlightRequest.
type RequestStatus string

const (
	RequestOpen          RequestStatus = "OPEN"
	RequestOfferAccepted RequestStatus = "OFFER_ACCEPTED"
	RequestPaid          RequestStatus = "PAID"
	RequestIssued        RequestStatus = "ISSUED"
	RequestCompleted     RequestStatus = "COMPLETED"
	RequestCanceled      RequestStatus = "CANCELED"
)

// OfferStatus is the lifecycle state of an Offer.
type OfferStatus string

const (
	OfferPending      OfferStatus = "PENDING"
	OfferAccepted     OfferStatus = "ACCEPTED"
	OfferPaidByBuyer  OfferStatus = "PAID_BY_BUYER"
	OfferTicketIssued OfferStatus = "TICKET_ISSUED"
	OfferCompleted    OfferStatus = "COMPLETED"
	OfferRejected     OfferStatus = "REJECTED"
	OfferExpired      OfferStatus = "EXPIRED"
)

// TripType distinguishes one-way from round trips.
type TripType string

const (
	TripOneWay    TripType = "ONE_WAY"
	TripRoundTrip TripType = "ROUND_TRIP"
)

// FlightRequest is a buyer's intent to purchase a flight with miles.
type FlightRequest struct {
	ID              string        `json:"id"`
	BuyerID         string        `json:"buyerId"`
	Origin          string        `json:"origin"`
	Destination     string        `json:"destination"`
	DepartDate      time.Time     `json:"departDate"`
	ReturnDate      *time.Time    `json:"returnDate,omitempty"`
	TripType        TripType      `json:"tripType"`
	PassengersCount int           `json:"passengersCount"`
	Flexibility     bool          `json:"flexibility"`
	Observation     string        `json:"observation,omitempty"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Offer is a seller's proposal against a FlightRequest. Fee fields are
// computed once at creation and never recomputed, so fee-rate changes do not
// retroactively alter existing offers. All money is in centavos.
type Offer struct {
	ID               string      `json:"id"`
	FlightRequestID  string      `json:"flightRequestId"`
	SellerID         string      `json:"sellerId"`
	Amount           int64       `json:"amountCentavos"`
	FeeBuyer         int64       `json:"feeBuyerCentavos"`
	FeeSeller        int64       `json:"feeSellerCentavos"`
	TotalPrice       int64       `json:"totalPriceCentavos"`
	NetAmount        int64       `json:"netAmountCentavos"`
	Airline          string      `json:"airline"`
	EmissionDeadline string      `json:"emissionDeadline,omitempty"`
	Observation      string      `json:"observation,omitempty"`
	Status           OfferStatus `json:"status"`

	// Populated during the lifecycle.
	PixCode          string     `json:"pixCode,omitempty"`
	PixImage         string     `json:"pixImage,omitempty"`
	PaymentID        string     `json:"paymentId,omitempty"`
	ProofURL         string     `json:"proofUrl,omitempty"`
	PNR              string     `json:"pnr,omitempty"`
	AcceptedAt       *time.Time `json:"acceptedAt,omitempty"`
	PaymentExpiresAt *time.Time `json:"paymentExpiresAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal returns true if the offer is in a final state.
func (o *Offer) IsTerminal() bool {
	switch o.Status {
	case OfferCompleted, OfferRejected, OfferExpired:
		return true
	}
	return false
}

// PaymentConfirmed reports whether the buyer's money has arrived. Passenger
// personal data becomes visible to the seller only after this point.
func (o *Offer) PaymentConfirmed() bool {
	switch o.Status {
	case OfferPaidByBuyer, OfferTicketIssued, OfferCompleted:
		return true
	}
	return false
}

// Sale is the seller-side projection of an offer and its request. It
// structurally carries no passenger data; sellers fetch passengers through
// the passenger API, which enforces the paid-state predicate.
type Sale struct {
	Offer   *Offer         `json:"offer"`
	Request *FlightRequest `json:"request"`
}

// Fees is the money identity frozen onto an offer at creation.
type Fees struct {
	FeeBuyer   int64
	FeeSeller  int64
	TotalPrice int64
	NetAmount  int64
}

// ComputeFees applies the platform fee (basis points) to a base amount.
// feeBuyer = feeSeller = amount*bps/10000; total = amount + feeBuyer;
// net = amount - feeSeller.
func ComputeFees(amount, feeBps int64) Fees {
	fee := amount * feeBps / 10000
	return Fees{
		FeeBuyer:   fee,
		FeeSeller:  fee,
		TotalPrice: amount + fee,
		NetAmount:  amount - fee,
	}
}

// Store persists flight requests and offers.
//
// The multi-row transition methods (AcceptOffer, ConfirmPayment, MarkIssued,
// CompleteOffer, Cancel, ExpireAccepted) update the offer/request pair in one
// atomic transaction and re-check the current status inside that transaction,
// so a lost race surfaces as ErrInvalidStatus, never as a half-applied pair.
type Store interface {
	CreateRequest(ctx context.Context, req *FlightRequest) error
	GetRequest(ctx context.Context, id string) (*FlightRequest, error)
	ListOpenRequests(ctx context.Context, limit int) ([]*FlightRequest, error)
	ListRequestsByBuyer(ctx context.Context, buyerID string) ([]*FlightRequest, error)

	CreateOffer(ctx context.Context, offer *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	ListOffersByRequest(ctx context.Context, requestID string) ([]*Offer, error)
	ListOffersBySeller(ctx context.Context, sellerID string) ([]*Offer, error)

	// AcceptOffer sets offer ACCEPTED and request OFFER_ACCEPTED, requiring
	// offer PENDING and request OPEN at transaction time.
	AcceptOffer(ctx context.Context, offerID string, acceptedAt, paymentExpiresAt time.Time) error
	// RejectOffer sets a PENDING offer to REJECTED.
	RejectOffer(ctx context.Context, offerID string) error
	// CancelRequest sets an unmonetized request to CANCELED, requiring the
	// status to still be cancellable at transaction time.
	CancelRequest(ctx context.Context, requestID string) error
	// AttachCharge stores the gateway charge artifacts on an offer.
	AttachCharge(ctx context.Context, offerID, pixCode, pixImage, paymentID string) error
	// ConfirmPayment sets offer PAID_BY_BUYER and request PAID, recording the
	// gateway transaction id. ErrAlreadyPaid if the offer is at or beyond
	// PAID_BY_BUYER (checked inside the same transaction as the write).
	ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) error
	// MarkIssued sets offer TICKET_ISSUED and request ISSUED, storing the
	// locator and proof URL. Requires offer PAID_BY_BUYER.
	MarkIssued(ctx context.Context, offerID, pnr, proofURL string) error
	// CompleteOffer sets offer COMPLETED and request COMPLETED. Requires
	// offer TICKET_ISSUED.
	CompleteOffer(ctx context.Context, offerID string) error
	// ExpireAccepted moves ACCEPTED offers whose payment window passed to
	// EXPIRED and reopens their requests. Returns the expired offers.
	ExpireAccepted(ctx context.Context, now time.Time, limit int) ([]*Offer, error)
}
