package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facilmilha/facilmilha/internal/idgen"
	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/metrics"
	"github.com/facilmilha/facilmilha/internal/traces"
	"github.com/facilmilha/facilmilha/internal/validation"
)

// LedgerService abstracts the escrow ledger so order doesn't import wallet.
type LedgerService interface {
	// CreditSale places the seller's net amount on their pending balance
	// under the platform hold. Returns the ledger entry id.
	CreditSale(ctx context.Context, sellerAccountID string, amountCentavos int64, description string) (string, error)
}

// ChargeCreator abstracts the payment gateway's charge-creation call.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, requestNumber string, amountCentavos int64, dueDate time.Time, payerName, payerEmail, payerDocument string) (gatewayTransactionID, paymentCode, paymentCodeBase64 string, err error)
}

// BuyerDirectory resolves buyer identity details for charge creation.
type BuyerDirectory interface {
	BuyerIdentity(ctx context.Context, accountID string) (name, email string, err error)
}

// EventPublisher broadcasts marketplace lifecycle events (live feed).
type EventPublisher interface {
	PublishOrderEvent(eventType string, payload interface{})
}

// Config carries the order service's frozen-at-startup settings.
type Config struct {
	FeeBps        int64
	PaymentWindow time.Duration
	ChargeTTL     time.Duration
}

// Service implements the order state machine.
type Service struct {
	store   Store
	ledger  LedgerService
	charger ChargeCreator
	buyers  BuyerDirectory
	events  EventPublisher
	cfg     Config
	locks   sync.Map // per-offer ID locks for multi-step transitions
}

// NewService creates a new order service.
func NewService(store Store, ledger LedgerService, cfg Config) *Service {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 15 * time.Minute
	}
	if cfg.ChargeTTL <= 0 {
		cfg.ChargeTTL = 24 * time.Hour
	}
	return &Service{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
	}
}

// WithCharger wires the payment gateway client for checkout.
func (s *Service) WithCharger(c ChargeCreator, buyers BuyerDirectory) *Service {
	s.charger = c
	s.buyers = buyers
	return s
}

// WithEvents wires the live marketplace event feed.
func (s *Service) WithEvents(e EventPublisher) *Service {
	s.events = e
	return s
}

// offerLock returns a mutex for the given offer ID. It prevents concurrent
// multi-step transitions (e.g. receipt confirmation racing the reaper).
func (s *Service) offerLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.events != nil {
		s.events.PublishOrderEvent(eventType, payload)
	}
}

// CreateRequestInput holds the fields for posting a flight request.
type CreateRequestInput struct {
	BuyerID         string     `json:"-"`
	Origin          string     `json:"origin" binding:"required"`
	Destination     string     `json:"destination" binding:"required"`
	DepartDate      time.Time  `json:"departDate" binding:"required"`
	ReturnDate      *time.Time `json:"returnDate"`
	TripType        string     `json:"tripType"`
	PassengersCount int        `json:"passengersCount"`
	Flexibility     bool       `json:"flexibility"`
	Observation     string     `json:"observation"`
}

// CreateRequest posts a new OPEN flight request.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*FlightRequest, error) {
	origin := strings.ToUpper(strings.TrimSpace(in.Origin))
	destination := strings.ToUpper(strings.TrimSpace(in.Destination))

	if errs := validation.Validate(
		validation.Required("origin", origin),
		validation.Required("destination", destination),
		validation.ValidAirport("origin", origin),
		validation.ValidAirport("destination", destination),
		validation.MaxLength("observation", in.Observation, validation.MaxStringLength),
	); len(errs) > 0 {
		return nil, errs
	}

	tripType := TripOneWay
	if in.TripType == string(TripRoundTrip) || in.ReturnDate != nil {
		tripType = TripRoundTrip
	}
	passengers := in.PassengersCount
	if passengers <= 0 {
		passengers = 1
	}

	now := time.Now()
	req := &FlightRequest{
		ID:              idgen.WithPrefix("req_"),
		BuyerID:         in.BuyerID,
		Origin:          origin,
		Destination:     destination,
		DepartDate:      in.DepartDate,
		ReturnDate:      in.ReturnDate,
		TripType:        tripType,
		PassengersCount: passengers,
		Flexibility:     in.Flexibility,
		Observation:     validation.SanitizeString(in.Observation, validation.MaxStringLength),
		Status:          RequestOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create flight request: %w", err)
	}

	s.publish("request.created", req)
	return req, nil
}

// GetRequest returns a flight request by id.
func (s *Service) GetRequest(ctx context.Context, id string) (*FlightRequest, error) {
	return s.store.GetRequest(ctx, id)
}

// ListOpen returns OPEN requests for the marketplace feed.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*FlightRequest, error) {
	return s.store.ListOpenRequests(ctx, limit)
}

// ListByBuyer returns a buyer's requests with their offers.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]*FlightRequest, error) {
	return s.store.ListRequestsByBuyer(ctx, buyerID)
}

// OffersForRequest returns all offers made against a request.
func (s *Service) OffersForRequest(ctx context.Context, requestID string) ([]*Offer, error) {
	return s.store.ListOffersByRequest(ctx, requestID)
}

// ListSales returns the seller-side view of a seller's offers. The Sale
// projection structurally carries no passenger data regardless of status.
func (s *Service) ListSales(ctx context.Context, sellerID string) ([]*Sale, error) {
	offers, err := s.store.ListOffersBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	sales := make([]*Sale, 0, len(offers))
	for _, o := range offers {
		req, err := s.store.GetRequest(ctx, o.FlightRequestID)
		if err != nil {
			return nil, err
		}
		sales = append(sales, &Sale{Offer: o, Request: req})
	}
	return sales, nil
}

// CreateOfferInput holds the fields for posting an offer.
type CreateOfferInput struct {
	SellerID         string `json:"-"`
	FlightRequestID  string `json:"-"`
	AmountCentavos   int64  `json:"amountCentavos" binding:"required"`
	Airline          string `json:"airline" binding:"required"`
	EmissionDeadline string `json:"emissionDeadline"`
	Observation      string `json:"observation"`
}

// CreateOffer posts a PENDING offer against an OPEN request. Multiple pending
// offers on the same request are permitted; acceptance is what is exclusive.
// Fee fields are computed here, once, from the configured rate.
func (s *Service) CreateOffer(ctx context.Context, in CreateOfferInput) (*Offer, error) {
	if in.AmountCentavos <= 0 {
		return nil, ErrInvalidAmount
	}

	req, err := s.store.GetRequest(ctx, in.FlightRequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestOpen {
		return nil, ErrInvalidStatus
	}

	fees := ComputeFees(in.AmountCentavos, s.cfg.FeeBps)
	now := time.Now()
	offer := &Offer{
		ID:               idgen.WithPrefix("off_"),
		FlightRequestID:  req.ID,
		SellerID:         in.SellerID,
		Amount:           in.AmountCentavos,
		FeeBuyer:         fees.FeeBuyer,
		FeeSeller:        fees.FeeSeller,
		TotalPrice:       fees.TotalPrice,
		NetAmount:        fees.NetAmount,
		Airline:          validation.SanitizeString(in.Airline, 100),
		EmissionDeadline: validation.SanitizeString(in.EmissionDeadline, 100),
		Observation:      validation.SanitizeString(in.Observation, validation.MaxStringLength),
		Status:           OfferPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	metrics.OffersTotal.WithLabelValues(string(OfferPending)).Inc()
	s.publish("offer.created", offer)
	return offer, nil
}

// GetOffer returns an offer by id.
func (s *Service) GetOffer(ctx context.Context, id string) (*Offer, error) {
	return s.store.GetOffer(ctx, id)
}

// AcceptOffer locks an offer and its request together. Only the request's
// buyer may accept; the offer must still be PENDING and the request OPEN at
// transaction time, which closes the read-then-write race window. Acceptance
// opens the payment window.
func (s *Service) AcceptOffer(ctx context.Context, offerID, buyerID string) (*Offer, error) {
	ctx, span := traces.StartSpan(ctx, "order.AcceptOffer", traces.OfferID(offerID))
	defer span.End()

	mu := s.offerLock(offerID)
	mu.Lock()
	defer mu.Unlock()

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.GetRequest(ctx, offer.FlightRequestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != buyerID {
		return nil, ErrUnauthorized
	}

	now := time.Now()
	if err := s.store.AcceptOffer(ctx, offerID, now, now.Add(s.cfg.PaymentWindow)); err != nil {
		return nil, err
	}

	offer, err = s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(OfferAccepted)).Inc()
	s.publish("offer.accepted", offer)
	return offer, nil
}

// RejectOffer declines a PENDING offer. Only the request's buyer may reject.
func (s *Service) RejectOffer(ctx context.Context, offerID, buyerID string) (*Offer, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.GetRequest(ctx, offer.FlightRequestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != buyerID {
		return nil, ErrUnauthorized
	}

	if err := s.store.RejectOffer(ctx, offerID); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(OfferRejected)).Inc()
	return s.store.GetOffer(ctx, offerID)
}

// CancelResult is the structured outcome of a cancellation attempt. It is a
// value, not an error: the caller renders the reason to the user.
type CancelResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"` // "not_found", "not_authorized", "not_cancellable"
}

// CancelRequest soft-cancels an unmonetized request. Offers already made stay
// as historical records. Paid, issued, or completed requests are never
// cancellable.
func (s *Service) CancelRequest(ctx context.Context, requestID, buyerID string) (CancelResult, error) {
	ctx, span := traces.StartSpan(ctx, "order.CancelRequest", traces.RequestID(requestID))
	defer span.End()

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if err == ErrRequestNotFound {
			return CancelResult{OK: false, Reason: "not_found"}, nil
		}
		return CancelResult{}, err
	}
	if req.BuyerID != buyerID {
		return CancelResult{OK: false, Reason: "not_authorized"}, nil
	}

	switch req.Status {
	case RequestPaid, RequestIssued, RequestCompleted:
		return CancelResult{OK: false, Reason: "not_cancellable"}, nil
	case RequestCanceled:
		// Cancelling twice is a no-op success.
		return CancelResult{OK: true}, nil
	}

	if err := s.store.CancelRequest(ctx, requestID); err != nil {
		if err == ErrInvalidStatus {
			// Lost a race with payment confirmation.
			return CancelResult{OK: false, Reason: "not_cancellable"}, nil
		}
		return CancelResult{}, err
	}

	s.publish("request.canceled", requestID)
	return CancelResult{OK: true}, nil
}

// ChargeArtifacts is what checkout renders for the buyer to pay.
type ChargeArtifacts struct {
	PixCode  string `json:"pixCode"`
	PixImage string `json:"pixImage"`
}

// GenerateCharge creates a gateway charge for an accepted offer and stores
// the charge artifacts on it. Only the request's buyer may start checkout.
func (s *Service) GenerateCharge(ctx context.Context, offerID, buyerID, payerDocument string) (*ChargeArtifacts, error) {
	if s.charger == nil || s.buyers == nil {
		return nil, fmt.Errorf("payment gateway not configured")
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.GetRequest(ctx, offer.FlightRequestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != buyerID {
		return nil, ErrUnauthorized
	}
	if offer.Status != OfferAccepted {
		return nil, ErrInvalidStatus
	}

	name, email, err := s.buyers.BuyerIdentity(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("resolve buyer identity: %w", err)
	}

	// The QR code must not outlive the payment window, or the buyer can pay
	// a charge whose offer the reaper has already expired.
	dueDate := time.Now().Add(s.cfg.ChargeTTL)
	if offer.PaymentExpiresAt != nil && offer.PaymentExpiresAt.Before(dueDate) {
		dueDate = *offer.PaymentExpiresAt
	}
	gatewayID, code, image, err := s.charger.CreateCharge(ctx, offer.ID, offer.TotalPrice, dueDate,
		name, email, validation.StripNonDigits(payerDocument))
	if err != nil {
		return nil, err
	}

	if err := s.store.AttachCharge(ctx, offer.ID, code, image, gatewayID); err != nil {
		return nil, fmt.Errorf("attach charge: %w", err)
	}

	return &ChargeArtifacts{PixCode: code, PixImage: image}, nil
}

// PaymentOutcome reports how a payment confirmation was handled.
type PaymentOutcome string

const (
	PaymentApplied   PaymentOutcome = "applied"   // first confirmation, state advanced
	PaymentDuplicate PaymentOutcome = "duplicate" // already paid, no-op success
	PaymentUnknown   PaymentOutcome = "unknown"   // offer id not found, soft failure
	PaymentLate      PaymentOutcome = "late"      // offer expired before the payment landed, refund needed
)

// ConfirmPayment applies a gateway payment confirmation. Idempotent: a
// duplicate notification is a successful no-op with no side effects. An
// unknown offer id is a soft failure so the webhook handler can still
// acknowledge the event and stop the sender's retry loop.
func (s *Service) ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) (PaymentOutcome, error) {
	ctx, span := traces.StartSpan(ctx, "order.ConfirmPayment", traces.OfferID(offerID))
	defer span.End()

	err := s.store.ConfirmPayment(ctx, offerID, gatewayTransactionID)
	switch {
	case err == nil:
		metrics.PaymentsConfirmedTotal.WithLabelValues("applied").Inc()
		metrics.OffersTotal.WithLabelValues(string(OfferPaidByBuyer)).Inc()

		if offer, getErr := s.store.GetOffer(ctx, offerID); getErr == nil {
			s.publish("offer.paid", offer)
		}
		return PaymentApplied, nil

	case err == ErrAlreadyPaid:
		metrics.PaymentsConfirmedTotal.WithLabelValues("duplicate").Inc()
		if offer, getErr := s.store.GetOffer(ctx, offerID); getErr == nil &&
			offer.PaymentID != "" && offer.PaymentID != gatewayTransactionID {
			logging.L(ctx).Warn("duplicate payment confirmation with different gateway transaction id",
				"offer_id", offerID, "stored", offer.PaymentID, "received", gatewayTransactionID)
		}
		return PaymentDuplicate, nil

	case err == ErrOfferNotFound:
		metrics.PaymentsConfirmedTotal.WithLabelValues("unknown").Inc()
		return PaymentUnknown, nil

	case err == ErrInvalidStatus:
		// The reaper can expire an offer between the buyer scanning the QR
		// code and the gateway delivering the confirmation. The money was
		// taken; the transition is refused, so the payment must be refunded
		// by hand.
		if offer, getErr := s.store.GetOffer(ctx, offerID); getErr == nil && offer.Status == OfferExpired {
			metrics.PaymentsConfirmedTotal.WithLabelValues("late").Inc()
			logging.L(ctx).Error("CRITICAL: payment confirmed for expired offer, refund required",
				"offer_id", offerID, "gateway_transaction_id", gatewayTransactionID)
			return PaymentLate, nil
		}
		return "", err

	default:
		return "", err
	}
}

// SubmitProof records the locator and proof of issuance. Only the offer's
// seller may submit, the offer must be PAID_BY_BUYER, and the locator is
// validated before any state is mutated.
func (s *Service) SubmitProof(ctx context.Context, offerID, sellerID, pnr, proofURL string) (*Offer, error) {
	cleanPNR := validation.NormalizePNR(pnr)
	if !validation.IsValidPNR(cleanPNR) {
		return nil, ErrInvalidPNR
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != sellerID {
		return nil, ErrUnauthorized
	}

	if err := s.store.MarkIssued(ctx, offerID, cleanPNR, validation.SanitizeString(proofURL, 500)); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(OfferTicketIssued)).Inc()
	return s.store.GetOffer(ctx, offerID)
}

// ConfirmReceipt completes the order and credits the seller's escrow wallet
// under the platform hold. This is the single event that moves money toward
// the seller.
func (s *Service) ConfirmReceipt(ctx context.Context, offerID, buyerID string) (*Offer, error) {
	ctx, span := traces.StartSpan(ctx, "order.ConfirmReceipt", traces.OfferID(offerID))
	defer span.End()

	mu := s.offerLock(offerID)
	mu.Lock()
	defer mu.Unlock()

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.GetRequest(ctx, offer.FlightRequestID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != buyerID {
		return nil, ErrUnauthorized
	}
	if offer.Status != OfferTicketIssued {
		return nil, ErrInvalidStatus
	}

	description := fmt.Sprintf("Sale #%s (releases after hold)", shortID(offer.FlightRequestID))
	if _, err := s.ledger.CreditSale(ctx, offer.SellerID, offer.NetAmount, description); err != nil {
		return nil, fmt.Errorf("credit seller wallet: %w", err)
	}

	if err := s.store.CompleteOffer(ctx, offerID); err != nil {
		// Funds already credited; the completion must persist. Retry once and
		// escalate on repeated failure rather than applying a wrong reversal.
		if retryErr := s.store.CompleteOffer(ctx, offerID); retryErr != nil {
			logging.L(ctx).Error("CRITICAL: seller credited but offer completion failed",
				"offer_id", offerID, "seller_id", offer.SellerID, "error", retryErr)
			return nil, fmt.Errorf("complete offer after wallet credit (requires manual resolution): %w", err)
		}
	}

	metrics.OffersTotal.WithLabelValues(string(OfferCompleted)).Inc()

	offer, err = s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	s.publish("offer.completed", offer)
	return offer, nil
}

// ExpireOverdueOffers transitions ACCEPTED offers past their payment window
// to EXPIRED and reopens their requests. Called by the expiry reaper.
func (s *Service) ExpireOverdueOffers(ctx context.Context, logger *slog.Logger) int {
	expired, err := s.store.ExpireAccepted(ctx, time.Now(), 100)
	if err != nil {
		logger.Warn("failed to expire overdue offers", "error", err)
		return 0
	}

	for _, o := range expired {
		metrics.OffersTotal.WithLabelValues(string(OfferExpired)).Inc()
		s.publish("offer.expired", o)
		logger.Info("expired accepted offer past payment window",
			"offer_id", o.ID, "request_id", o.FlightRequestID)
	}
	return len(expired)
}

// CanViewPassengers reports whether an account may read the passenger records
// of a request: the buyer always, the accepted seller only once payment is
// confirmed.
func (s *Service) CanViewPassengers(ctx context.Context, requestID, accountID string) (bool, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	if req.BuyerID == accountID {
		return true, nil
	}

	offers, err := s.store.ListOffersByRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	for _, o := range offers {
		if o.SellerID == accountID && o.PaymentConfirmed() {
			return true, nil
		}
	}
	return false, nil
}

// RequestMutable reports whether a request's passenger list may still change.
func (s *Service) RequestMutable(ctx context.Context, requestID string) (bool, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	return req.Status != RequestIssued && req.Status != RequestCompleted, nil
}

// IsRequestOwner reports whether the account owns the request.
func (s *Service) IsRequestOwner(ctx context.Context, requestID, accountID string) (bool, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	return req.BuyerID == accountID, nil
}

// OfferParties returns the buyer and seller of an offer and whether the
// order has completed. Used by the rating flow.
func (s *Service) OfferParties(ctx context.Context, offerID string) (buyerID, sellerID string, completed bool, err error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return "", "", false, err
	}
	req, err := s.store.GetRequest(ctx, offer.FlightRequestID)
	if err != nil {
		return "", "", false, err
	}
	return req.BuyerID, offer.SellerID, offer.Status == OfferCompleted, nil
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
