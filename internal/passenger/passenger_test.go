package passenger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccess struct {
	owner   bool
	mutable bool
	viewer  bool
}

func (f fakeAccess) IsRequestOwner(ctx context.Context, requestID, accountID string) (bool, error) {
	return f.owner, nil
}

func (f fakeAccess) RequestMutable(ctx context.Context, requestID string) (bool, error) {
	return f.mutable, nil
}

func (f fakeAccess) CanViewPassengers(ctx context.Context, requestID, accountID string) (bool, error) {
	return f.viewer, nil
}

func birth(year int) time.Time {
	return time.Date(year, 3, 14, 0, 0, 0, 0, time.UTC)
}

func TestReplaceStoresNormalizedDocuments(t *testing.T) {
	svc := NewService(NewMemoryStore(), fakeAccess{owner: true, mutable: true})

	passengers, err := svc.Replace(context.Background(), "req_1", "buyer1", []PassengerInput{
		{FullName: "Maria Silva", Document: "123.456.789-00", BirthDate: birth(1990)},
	})
	require.NoError(t, err)
	require.Len(t, passengers, 1)
	assert.Equal(t, "12345678900", passengers[0].Document)
}

func TestReplaceSwapsEntireList(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, fakeAccess{owner: true, mutable: true, viewer: true})
	ctx := context.Background()

	_, err := svc.Replace(ctx, "req_1", "buyer1", []PassengerInput{
		{FullName: "Maria Silva", Document: "11111111111", BirthDate: birth(1990)},
		{FullName: "Pedro Silva", Document: "22222222222", BirthDate: birth(1992)},
	})
	require.NoError(t, err)

	_, err = svc.Replace(ctx, "req_1", "buyer1", []PassengerInput{
		{FullName: "Ana Souza", Document: "33333333333", BirthDate: birth(1985)},
	})
	require.NoError(t, err)

	got, err := svc.List(ctx, "req_1", "buyer1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ana Souza", got[0].FullName)
}

func TestReplaceRejectsEmptyList(t *testing.T) {
	svc := NewService(NewMemoryStore(), fakeAccess{owner: true, mutable: true})

	_, err := svc.Replace(context.Background(), "req_1", "buyer1", nil)
	assert.ErrorIs(t, err, ErrNoPassengers)
}

func TestReplaceDeniedForNonOwner(t *testing.T) {
	svc := NewService(NewMemoryStore(), fakeAccess{owner: false, mutable: true})

	_, err := svc.Replace(context.Background(), "req_1", "intruder", []PassengerInput{
		{FullName: "Maria Silva", Document: "11111111111", BirthDate: birth(1990)},
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReplaceDeniedAfterIssuance(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, fakeAccess{owner: true, mutable: false, viewer: true})
	ctx := context.Background()

	require.NoError(t, store.ReplaceForRequest(ctx, "req_1", []*Passenger{
		{ID: "pax_1", FlightRequestID: "req_1", FullName: "Maria Silva", Document: "11111111111"},
	}))

	_, err := svc.Replace(ctx, "req_1", "buyer1", []PassengerInput{
		{FullName: "Late Change", Document: "99999999999", BirthDate: birth(2000)},
	})
	assert.ErrorIs(t, err, ErrRequestFrozen)

	// The original list survives the rejected replace.
	got, err := svc.List(ctx, "req_1", "buyer1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Maria Silva", got[0].FullName)
}

func TestListDeniedWithoutAccess(t *testing.T) {
	svc := NewService(NewMemoryStore(), fakeAccess{viewer: false})

	_, err := svc.List(context.Background(), "req_1", "seller1")
	assert.ErrorIs(t, err, ErrForbidden)
}
