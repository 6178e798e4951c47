package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilmilha/facilmilha/internal/account"
	"github.com/facilmilha/facilmilha/internal/wallet"
)

type fakeKeys struct {
	keys map[string]string // accountID -> pix key
}

func (f fakeKeys) PayoutKey(ctx context.Context, accountID string) (string, account.PixKeyType, error) {
	key := f.keys[accountID]
	if key == "" {
		return "", "", nil
	}
	return key, account.ClassifyPixKey(key), nil
}

type fakeGateway struct {
	transfers []transfer
	failKeys  map[string]bool
}

type transfer struct {
	pixKey     string
	keyType    string
	amount     int64
	externalID string
}

func (f *fakeGateway) CashOut(ctx context.Context, pixKey, keyType string, amountCentavos int64, externalID string) error {
	if f.failKeys[pixKey] {
		return errors.New("gateway down")
	}
	f.transfers = append(f.transfers, transfer{pixKey, keyType, amountCentavos, externalID})
	return nil
}

func seedWallet(t *testing.T, store wallet.Store, walletID, accountID string) {
	t.Helper()
	require.NoError(t, store.CreateWallet(context.Background(), &wallet.Wallet{
		ID:        walletID,
		AccountID: accountID,
		UpdatedAt: time.Now(),
	}))
}

func seedHold(t *testing.T, store wallet.Store, walletID, txnID string, amount int64, availableAt time.Time) {
	t.Helper()
	require.NoError(t, store.Credit(context.Background(), walletID, &wallet.FinancialTransaction{
		ID:          txnID,
		WalletID:    walletID,
		Type:        wallet.TypeSaleHold,
		Amount:      amount,
		Status:      wallet.StatusPending,
		AvailableAt: availableAt,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
}

func TestReleaseMaturedFunds(t *testing.T) {
	store := wallet.NewMemoryStore()
	gw := &fakeGateway{}
	svc := NewService(store, fakeKeys{keys: map[string]string{"seller1": "seller@example.com"}}, gw)
	ctx := context.Background()

	seedWallet(t, store, "wal_1", "seller1")
	seedHold(t, store, "wal_1", "txn_1", 85_000, time.Now().Add(-time.Hour))
	seedHold(t, store, "wal_1", "txn_2", 40_000, time.Now().Add(24*time.Hour)) // not matured

	released, err := svc.ReleaseMaturedFunds(ctx, "wal_1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(85_000), released)

	require.Len(t, gw.transfers, 1)
	assert.Equal(t, "txn_1", gw.transfers[0].externalID)
	assert.Equal(t, "email", gw.transfers[0].keyType)

	// Released funds leave pending without ever touching available.
	w, err := store.Get(ctx, "wal_1")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), w.Pending)
	assert.Equal(t, int64(0), w.Available)
}

func TestSweepSkipsKeylessWallet(t *testing.T) {
	store := wallet.NewMemoryStore()
	gw := &fakeGateway{}
	svc := NewService(store, fakeKeys{keys: map[string]string{}}, gw)
	ctx := context.Background()

	seedWallet(t, store, "wal_1", "seller1")
	seedHold(t, store, "wal_1", "txn_1", 85_000, time.Now().Add(-time.Hour))

	released, err := svc.ReleaseMaturedFunds(ctx, "wal_1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Empty(t, gw.transfers)

	// The hold survives for a later sweep.
	w, err := store.Get(ctx, "wal_1")
	require.NoError(t, err)
	assert.Equal(t, int64(85_000), w.Pending)
}

func TestGatewayFailureKeepsHoldPending(t *testing.T) {
	store := wallet.NewMemoryStore()
	gw := &fakeGateway{failKeys: map[string]bool{"11122233344": true}}
	svc := NewService(store, fakeKeys{keys: map[string]string{"seller1": "11122233344"}}, gw)
	ctx := context.Background()

	seedWallet(t, store, "wal_1", "seller1")
	seedHold(t, store, "wal_1", "txn_1", 85_000, time.Now().Add(-time.Hour))

	released, err := svc.ReleaseMaturedFunds(ctx, "wal_1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, released)

	w, err := store.Get(ctx, "wal_1")
	require.NoError(t, err)
	assert.Equal(t, int64(85_000), w.Pending)
}

func TestSweepAllIsolatesFailures(t *testing.T) {
	store := wallet.NewMemoryStore()
	gw := &fakeGateway{failKeys: map[string]bool{"broken@example.com": true}}
	svc := NewService(store, fakeKeys{keys: map[string]string{
		"sellerA": "broken@example.com",
		"sellerB": "works@example.com",
	}}, gw)
	ctx := context.Background()

	seedWallet(t, store, "wal_a", "sellerA")
	seedWallet(t, store, "wal_b", "sellerB")
	seedHold(t, store, "wal_a", "txn_a", 10_000, time.Now().Add(-time.Hour))
	seedHold(t, store, "wal_b", "txn_b", 20_000, time.Now().Add(-time.Hour))

	total := svc.SweepAll(ctx)
	assert.Equal(t, int64(20_000), total)

	require.Len(t, gw.transfers, 1)
	assert.Equal(t, "txn_b", gw.transfers[0].externalID)
}

func TestSweepIsIdempotentAcrossRuns(t *testing.T) {
	store := wallet.NewMemoryStore()
	gw := &fakeGateway{}
	svc := NewService(store, fakeKeys{keys: map[string]string{"seller1": "seller@example.com"}}, gw)
	ctx := context.Background()

	seedWallet(t, store, "wal_1", "seller1")
	seedHold(t, store, "wal_1", "txn_1", 85_000, time.Now().Add(-time.Hour))

	first := svc.SweepAll(ctx)
	second := svc.SweepAll(ctx)

	assert.Equal(t, int64(85_000), first)
	assert.Zero(t, second)
	assert.Len(t, gw.transfers, 1)
}
