package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilmilha/facilmilha/internal/testutil"
)

func seedPGRequest(t *testing.T, store *PostgresStore, buyerID string) *FlightRequest {
	t.Helper()
	now := time.Now().UTC()
	req := &FlightRequest{
		ID:              "req_pg_" + now.Format("150405.000000000"),
		BuyerID:         buyerID,
		Origin:          "GRU",
		Destination:     "MIA",
		DepartDate:      now.AddDate(0, 1, 0),
		TripType:        TripOneWay,
		PassengersCount: 1,
		Status:          RequestOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func seedPGOffer(t *testing.T, store *PostgresStore, requestID, sellerID string) *Offer {
	t.Helper()
	now := time.Now().UTC()
	fees := ComputeFees(100_000, 1500)
	offer := &Offer{
		ID:              "off_pg_" + now.Format("150405.000000000"),
		FlightRequestID: requestID,
		SellerID:        sellerID,
		Amount:          100_000,
		FeeBuyer:        fees.FeeBuyer,
		FeeSeller:       fees.FeeSeller,
		TotalPrice:      fees.TotalPrice,
		NetAmount:       fees.NetAmount,
		Airline:         "LATAM",
		Status:          OfferPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, store.CreateOffer(context.Background(), offer))
	return offer
}

func TestPostgresPairTransitions(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	req := seedPGRequest(t, store, "buyer_pg")
	offer := seedPGOffer(t, store, req.ID, "seller_pg")

	now := time.Now().UTC()
	require.NoError(t, store.AcceptOffer(ctx, offer.ID, now, now.Add(15*time.Minute)))

	// The pair moved together.
	gotReq, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestOfferAccepted, gotReq.Status)

	// Second accept loses the status check inside the transaction.
	err = store.AcceptOffer(ctx, offer.ID, now, now.Add(15*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	require.NoError(t, store.ConfirmPayment(ctx, offer.ID, "gw_pg_1"))
	assert.ErrorIs(t, store.ConfirmPayment(ctx, offer.ID, "gw_pg_1"), ErrAlreadyPaid)

	require.NoError(t, store.MarkIssued(ctx, offer.ID, "AB12CD", ""))
	require.NoError(t, store.CompleteOffer(ctx, offer.ID))

	gotOffer, err := store.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferCompleted, gotOffer.Status)
	assert.Equal(t, "AB12CD", gotOffer.PNR)
	assert.Equal(t, "gw_pg_1", gotOffer.PaymentID)
}

func TestPostgresCreateOfferRequiresOpenRequest(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	req := seedPGRequest(t, store, "buyer_pg")
	require.NoError(t, store.CancelRequest(ctx, req.ID))

	now := time.Now().UTC()
	err := store.CreateOffer(ctx, &Offer{
		ID:              "off_pg_closed",
		FlightRequestID: req.ID,
		SellerID:        "seller_pg",
		Amount:          100,
		TotalPrice:      115,
		NetAmount:       85,
		Airline:         "GOL",
		Status:          OfferPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPostgresExpireAccepted(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	req := seedPGRequest(t, store, "buyer_pg")
	offer := seedPGOffer(t, store, req.ID, "seller_pg")

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.AcceptOffer(ctx, offer.ID, past, past.Add(time.Minute)))

	expired, err := store.ExpireAccepted(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	gotReq, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestOpen, gotReq.Status)
}
