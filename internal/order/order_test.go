package order

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLedger struct {
	mu      sync.Mutex
	credits []credit
	err     error
}

type credit struct {
	accountID   string
	amount      int64
	description string
}

func (f *fakeLedger) CreditSale(ctx context.Context, sellerAccountID string, amountCentavos int64, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.credits = append(f.credits, credit{sellerAccountID, amountCentavos, description})
	return "txn_test", nil
}

type fakeCharger struct {
	calls   int
	lastDue time.Time
}

func (f *fakeCharger) CreateCharge(ctx context.Context, requestNumber string, amountCentavos int64, dueDate time.Time, payerName, payerEmail, payerDocument string) (string, string, string, error) {
	f.calls++
	f.lastDue = dueDate
	return "gw_123", "pix-copy-paste-code", "base64image", nil
}

type fakeBuyers struct{}

func (fakeBuyers) BuyerIdentity(ctx context.Context, accountID string) (string, string, error) {
	return "Test Buyer", "buyer@example.com", nil
}

func newTestService(ledger *fakeLedger) *Service {
	return NewService(NewMemoryStore(), ledger, Config{
		FeeBps:        1500,
		PaymentWindow: 15 * time.Minute,
	})
}

func createOpenRequest(t *testing.T, svc *Service, buyerID string) *FlightRequest {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), CreateRequestInput{
		BuyerID:     buyerID,
		Origin:      "GRU",
		Destination: "MIA",
		DepartDate:  time.Now().AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	return req
}

func createPendingOffer(t *testing.T, svc *Service, requestID, sellerID string, amount int64) *Offer {
	t.Helper()
	offer, err := svc.CreateOffer(context.Background(), CreateOfferInput{
		SellerID:        sellerID,
		FlightRequestID: requestID,
		AmountCentavos:  amount,
		Airline:         "LATAM",
	})
	require.NoError(t, err)
	return offer
}

func TestComputeFees(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		feeBps int64
		total  int64
		net    int64
	}{
		{"round amount", 100_000, 1500, 115_000, 85_000},
		{"truncates toward zero", 101, 1500, 116, 86}, // 101*1500/10000 = 15
		{"one centavo", 1, 1500, 1, 1},
		{"zero rate", 100_000, 0, 100_000, 100_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fees := ComputeFees(tt.amount, tt.feeBps)
			assert.Equal(t, tt.total, fees.TotalPrice)
			assert.Equal(t, tt.net, fees.NetAmount)
			assert.Equal(t, fees.FeeBuyer, fees.FeeSeller)
		})
	}
}

func TestCreateOfferFreezesFees(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")

	offer := createPendingOffer(t, svc, req.ID, "seller1", 100_000)

	assert.Equal(t, int64(15_000), offer.FeeBuyer)
	assert.Equal(t, int64(15_000), offer.FeeSeller)
	assert.Equal(t, int64(115_000), offer.TotalPrice)
	assert.Equal(t, int64(85_000), offer.NetAmount)
}

func TestCreateOfferRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")

	_, err := svc.CreateOffer(context.Background(), CreateOfferInput{
		SellerID:        "seller1",
		FlightRequestID: req.ID,
		AmountCentavos:  0,
		Airline:         "GOL",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreateRequestValidatesAirports(t *testing.T) {
	svc := newTestService(&fakeLedger{})

	_, err := svc.CreateRequest(context.Background(), CreateRequestInput{
		BuyerID:     "buyer1",
		Origin:      "Guarulhos",
		Destination: "MIA",
		DepartDate:  time.Now().AddDate(0, 1, 0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "origin")
}

func TestAcceptOfferOnlyBuyer(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)

	_, err := svc.AcceptOffer(context.Background(), offer.ID, "intruder")
	assert.ErrorIs(t, err, ErrUnauthorized)

	accepted, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	assert.Equal(t, OfferAccepted, accepted.Status)
	require.NotNil(t, accepted.PaymentExpiresAt)

	got, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestOfferAccepted, got.Status)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	a := createPendingOffer(t, svc, req.ID, "sellerA", 50_000)
	b := createPendingOffer(t, svc, req.ID, "sellerB", 48_000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.AcceptOffer(context.Background(), id, "buyer1")
		}(i, id)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidStatus)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)

	outcome, err := svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentApplied, outcome)

	outcome, err = svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentDuplicate, outcome)

	got, err := svc.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferPaidByBuyer, got.Status)
	assert.Equal(t, "gw_1", got.PaymentID)
}

func TestConfirmPaymentUnknownOfferIsSoftFailure(t *testing.T) {
	svc := newTestService(&fakeLedger{})

	outcome, err := svc.ConfirmPayment(context.Background(), "off_missing", "gw_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentUnknown, outcome)
}

func TestCancelPaidRequestFails(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)

	result, err := svc.CancelRequest(context.Background(), req.ID, "buyer1")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "not_cancellable", result.Reason)

	got, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestPaid, got.Status)
}

func TestCancelOpenRequestKeepsOffers(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)

	result, err := svc.CancelRequest(context.Background(), req.ID, "buyer1")
	require.NoError(t, err)
	assert.True(t, result.OK)

	got, err := svc.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferPending, got.Status)

	// Cancelling again is a no-op success.
	result, err = svc.CancelRequest(context.Background(), req.ID, "buyer1")
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestCancelRequestStructuredDenials(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")

	result, err := svc.CancelRequest(context.Background(), "req_missing", "buyer1")
	require.NoError(t, err)
	assert.Equal(t, "not_found", result.Reason)

	result, err = svc.CancelRequest(context.Background(), req.ID, "intruder")
	require.NoError(t, err)
	assert.Equal(t, "not_authorized", result.Reason)
}

func TestSubmitProofNormalizesAndValidatesPNR(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)

	_, err = svc.SubmitProof(context.Background(), offer.ID, "seller1", "ABC", "")
	assert.ErrorIs(t, err, ErrInvalidPNR)

	_, err = svc.SubmitProof(context.Background(), offer.ID, "intruder", "AB12CD", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Lowercase with surrounding whitespace is normalized before storage.
	issued, err := svc.SubmitProof(context.Background(), offer.ID, "seller1", "  ab12cd ", "https://proof.example/1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", issued.PNR)
	assert.Equal(t, OfferTicketIssued, issued.Status)

	got, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestIssued, got.Status)
}

func TestSubmitProofRequiresPaidStatus(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)

	_, err := svc.SubmitProof(context.Background(), offer.ID, "seller1", "AB12CD", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConfirmReceiptCreditsSellerNetAmount(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(ledger)
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 100_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)
	_, err = svc.SubmitProof(context.Background(), offer.ID, "seller1", "AB12CD", "")
	require.NoError(t, err)

	completed, err := svc.ConfirmReceipt(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	assert.Equal(t, OfferCompleted, completed.Status)

	require.Len(t, ledger.credits, 1)
	assert.Equal(t, "seller1", ledger.credits[0].accountID)
	assert.Equal(t, int64(85_000), ledger.credits[0].amount)

	got, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestCompleted, got.Status)
}

func TestConfirmReceiptRequiresIssuedStatus(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(ledger)
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 100_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)

	_, err = svc.ConfirmReceipt(context.Background(), offer.ID, "buyer1")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, ledger.credits)
}

func TestConfirmReceiptOnlyBuyer(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(ledger)
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 100_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), offer.ID, "gw_1")
	require.NoError(t, err)
	_, err = svc.SubmitProof(context.Background(), offer.ID, "seller1", "AB12CD", "")
	require.NoError(t, err)

	_, err = svc.ConfirmReceipt(context.Background(), offer.ID, "seller1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, ledger.credits)
}

func TestGenerateChargeAttachesArtifacts(t *testing.T) {
	charger := &fakeCharger{}
	svc := newTestService(&fakeLedger{}).WithCharger(charger, fakeBuyers{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)

	charge, err := svc.GenerateCharge(context.Background(), offer.ID, "buyer1", "123.456.789-00")
	require.NoError(t, err)
	assert.Equal(t, "pix-copy-paste-code", charge.PixCode)
	assert.Equal(t, 1, charger.calls)

	got, err := svc.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, "gw_123", got.PaymentID)
}

func TestGenerateChargeDueDateNeverOutlivesPaymentWindow(t *testing.T) {
	charger := &fakeCharger{}
	svc := NewService(NewMemoryStore(), &fakeLedger{}, Config{
		FeeBps:        1500,
		PaymentWindow: 15 * time.Minute,
		ChargeTTL:     24 * time.Hour,
	}).WithCharger(charger, fakeBuyers{})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	accepted, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)
	require.NotNil(t, accepted.PaymentExpiresAt)

	_, err = svc.GenerateCharge(context.Background(), offer.ID, "buyer1", "12345678901")
	require.NoError(t, err)
	assert.Equal(t, *accepted.PaymentExpiresAt, charger.lastDue,
		"charge due date clamped to the payment deadline")
}

func TestConfirmPaymentOnExpiredOfferFlagsRefund(t *testing.T) {
	svc := NewService(NewMemoryStore(), &fakeLedger{}, Config{FeeBps: 1500, PaymentWindow: time.Millisecond})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, svc.ExpireOverdueOffers(context.Background(), testLogger()))

	outcome, err := svc.ConfirmPayment(context.Background(), offer.ID, "gw_late")
	require.NoError(t, err)
	assert.Equal(t, PaymentLate, outcome)

	got, err := svc.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferExpired, got.Status, "late payment never resurrects the offer")

	gotReq, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestOpen, gotReq.Status)
}

func TestExpireOverdueOffersReopensRequest(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &fakeLedger{}, Config{FeeBps: 1500, PaymentWindow: time.Millisecond})
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)
	_, err := svc.AcceptOffer(context.Background(), offer.ID, "buyer1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	n := svc.ExpireOverdueOffers(context.Background(), testLogger())
	assert.Equal(t, 1, n)

	gotOffer, err := svc.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferExpired, gotOffer.Status)

	gotReq, err := svc.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestOpen, gotReq.Status)

	// The reopened request accepts a fresh offer.
	second := createPendingOffer(t, svc, req.ID, "seller2", 49_000)
	_, err = svc.AcceptOffer(context.Background(), second.ID, "buyer1")
	require.NoError(t, err)
}

func TestFullOrderScenario(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newTestService(ledger)
	ctx := context.Background()

	req := createOpenRequest(t, svc, "buyer1")

	open, err := svc.ListOpen(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	offer := createPendingOffer(t, svc, req.ID, "seller1", 100_000)
	rival := createPendingOffer(t, svc, req.ID, "seller2", 120_000)

	_, err = svc.RejectOffer(ctx, rival.ID, "buyer1")
	require.NoError(t, err)

	_, err = svc.AcceptOffer(ctx, offer.ID, "buyer1")
	require.NoError(t, err)

	outcome, err := svc.ConfirmPayment(ctx, offer.ID, "gw_scenario")
	require.NoError(t, err)
	require.Equal(t, PaymentApplied, outcome)

	_, err = svc.SubmitProof(ctx, offer.ID, "seller1", "XY9Z2A", "https://proof.example/xyz.pdf")
	require.NoError(t, err)

	completed, err := svc.ConfirmReceipt(ctx, offer.ID, "buyer1")
	require.NoError(t, err)
	require.Equal(t, OfferCompleted, completed.Status)

	// Seller's escrow credit is the net amount after the 15% platform fee.
	require.Len(t, ledger.credits, 1)
	assert.Equal(t, int64(85_000), ledger.credits[0].amount)

	// The marketplace feed no longer shows the fulfilled request.
	open, err = svc.ListOpen(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	sales, err := svc.ListSales(ctx, "seller1")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, RequestCompleted, sales[0].Request.Status)
}

func TestCanViewPassengers(t *testing.T) {
	svc := newTestService(&fakeLedger{})
	ctx := context.Background()
	req := createOpenRequest(t, svc, "buyer1")
	offer := createPendingOffer(t, svc, req.ID, "seller1", 50_000)

	ok, err := svc.CanViewPassengers(ctx, req.ID, "buyer1")
	require.NoError(t, err)
	assert.True(t, ok, "buyer always sees passengers")

	ok, err = svc.CanViewPassengers(ctx, req.ID, "seller1")
	require.NoError(t, err)
	assert.False(t, ok, "seller blind before payment")

	_, err = svc.AcceptOffer(ctx, offer.ID, "buyer1")
	require.NoError(t, err)
	ok, err = svc.CanViewPassengers(ctx, req.ID, "seller1")
	require.NoError(t, err)
	assert.False(t, ok, "acceptance alone does not unlock passengers")

	_, err = svc.ConfirmPayment(ctx, offer.ID, "gw_1")
	require.NoError(t, err)
	ok, err = svc.CanViewPassengers(ctx, req.ID, "seller1")
	require.NoError(t, err)
	assert.True(t, ok, "payment unlocks passengers for the accepted seller")

	ok, err = svc.CanViewPassengers(ctx, req.ID, "seller2")
	require.NoError(t, err)
	assert.False(t, ok)
}
