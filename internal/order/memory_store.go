package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory order store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*FlightRequest
	offers   map[string]*Offer
}

// NewMemoryStore creates a new in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*FlightRequest),
		offers:   make(map[string]*Offer),
	}
}

func copyRequest(r *FlightRequest) *FlightRequest {
	c := *r
	if r.ReturnDate != nil {
		d := *r.ReturnDate
		c.ReturnDate = &d
	}
	return &c
}

func copyOffer(o *Offer) *Offer {
	c := *o
	if o.AcceptedAt != nil {
		t := *o.AcceptedAt
		c.AcceptedAt = &t
	}
	if o.PaymentExpiresAt != nil {
		t := *o.PaymentExpiresAt
		c.PaymentExpiresAt = &t
	}
	return &c
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *FlightRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id string) (*FlightRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (s *MemoryStore) ListOpenRequests(ctx context.Context, limit int) ([]*FlightRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*FlightRequest
	for _, r := range s.requests {
		if r.Status == RequestOpen {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListRequestsByBuyer(ctx context.Context, buyerID string) ([]*FlightRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*FlightRequest
	for _, r := range s.requests {
		if r.BuyerID == buyerID {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateOffer(ctx context.Context, o *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[o.FlightRequestID]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != RequestOpen {
		return ErrInvalidStatus
	}
	s.offers[o.ID] = copyOffer(o)
	return nil
}

func (s *MemoryStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	return copyOffer(o), nil
}

func (s *MemoryStore) ListOffersByRequest(ctx context.Context, requestID string) ([]*Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Offer
	for _, o := range s.offers {
		if o.FlightRequestID == requestID {
			out = append(out, copyOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListOffersBySeller(ctx context.Context, sellerID string) ([]*Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Offer
	for _, o := range s.offers {
		if o.SellerID == sellerID {
			out = append(out, copyOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AcceptOffer(ctx context.Context, offerID string, acceptedAt, paymentExpiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	req, ok := s.requests[o.FlightRequestID]
	if !ok {
		return ErrRequestNotFound
	}
	if o.Status != OfferPending || req.Status != RequestOpen {
		return ErrInvalidStatus
	}

	at := acceptedAt
	exp := paymentExpiresAt
	o.Status = OfferAccepted
	o.AcceptedAt = &at
	o.PaymentExpiresAt = &exp
	o.UpdatedAt = time.Now()
	req.Status = RequestOfferAccepted
	req.UpdatedAt = o.UpdatedAt
	return nil
}

func (s *MemoryStore) RejectOffer(ctx context.Context, offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if o.Status != OfferPending {
		return ErrInvalidStatus
	}
	o.Status = OfferRejected
	o.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CancelRequest(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrRequestNotFound
	}
	switch req.Status {
	case RequestPaid, RequestIssued, RequestCompleted:
		return ErrInvalidStatus
	}
	req.Status = RequestCanceled
	req.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AttachCharge(ctx context.Context, offerID, pixCode, pixImage, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if o.Status != OfferAccepted {
		return ErrInvalidStatus
	}
	o.PixCode = pixCode
	o.PixImage = pixImage
	o.PaymentID = paymentID
	o.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if o.PaymentConfirmed() {
		return ErrAlreadyPaid
	}
	if o.Status != OfferAccepted {
		return ErrInvalidStatus
	}
	req, ok := s.requests[o.FlightRequestID]
	if !ok {
		return ErrRequestNotFound
	}

	o.Status = OfferPaidByBuyer
	if gatewayTransactionID != "" {
		o.PaymentID = gatewayTransactionID
	}
	o.UpdatedAt = time.Now()
	req.Status = RequestPaid
	req.UpdatedAt = o.UpdatedAt
	return nil
}

func (s *MemoryStore) MarkIssued(ctx context.Context, offerID, pnr, proofURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if o.Status != OfferPaidByBuyer {
		return ErrInvalidStatus
	}
	req, ok := s.requests[o.FlightRequestID]
	if !ok {
		return ErrRequestNotFound
	}

	o.Status = OfferTicketIssued
	o.PNR = pnr
	o.ProofURL = proofURL
	o.UpdatedAt = time.Now()
	req.Status = RequestIssued
	req.UpdatedAt = o.UpdatedAt
	return nil
}

func (s *MemoryStore) CompleteOffer(ctx context.Context, offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if o.Status != OfferTicketIssued {
		return ErrInvalidStatus
	}
	req, ok := s.requests[o.FlightRequestID]
	if !ok {
		return ErrRequestNotFound
	}

	o.Status = OfferCompleted
	o.UpdatedAt = time.Now()
	req.Status = RequestCompleted
	req.UpdatedAt = o.UpdatedAt
	return nil
}

func (s *MemoryStore) ExpireAccepted(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Offer
	for _, o := range s.offers {
		if limit > 0 && len(expired) >= limit {
			break
		}
		if o.Status != OfferAccepted || o.PaymentExpiresAt == nil || o.PaymentExpiresAt.After(now) {
			continue
		}
		req, ok := s.requests[o.FlightRequestID]
		if !ok || req.Status != RequestOfferAccepted {
			continue
		}

		o.Status = OfferExpired
		o.UpdatedAt = time.Now()
		req.Status = RequestOpen
		req.UpdatedAt = o.UpdatedAt
		expired = append(expired, copyOffer(o))
	}
	return expired, nil
}
