package suitpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChargeSendsCredentialsAndCentavosAsReais(t *testing.T) {
	var got chargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-ci", r.Header.Get("ci"))
		assert.Equal(t, "test-cs", r.Header.Get("cs"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(chargeResponse{
			IDTransaction:     "gw_42",
			PaymentCode:       "pix-code",
			PaymentCodeBase64: "img",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "test-ci", "test-cs", "https://app.example/webhooks/suitpay")
	id, code, image, err := c.CreateCharge(context.Background(), "off_1", 115_000,
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), "Buyer", "b@example.com", "12345678900")
	require.NoError(t, err)

	assert.Equal(t, "gw_42", id)
	assert.Equal(t, "pix-code", code)
	assert.Equal(t, "img", image)
	assert.Equal(t, 1150.0, got.Amount)
	assert.Equal(t, "2026-09-01", got.DueDate)
	assert.Equal(t, "https://app.example/webhooks/suitpay", got.CallbackURL)
}

func TestCreateChargeRejectsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "ci", "cs", "")
	_, _, _, err := c.CreateCharge(context.Background(), "off_1", 100, time.Now(), "n", "e", "d")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestCashOutCarriesIdempotencyKey(t *testing.T) {
	var got cashOutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(cashOutResponse{Response: "OK", IDTransaction: "gw_out_1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "ci", "cs", "")
	err := c.CashOut(context.Background(), "seller@example.com", "email", 85_000, "txn_abc")
	require.NoError(t, err)

	assert.Equal(t, "txn_abc", got.ExternalID)
	assert.Equal(t, "email", got.TypeKey)
	assert.Equal(t, 850.0, got.Value)
}

func TestCashOutRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cashOutResponse{Response: "INVALID_KEY"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "ci", "cs", "")
	err := c.CashOut(context.Background(), "bad-key", "randomKey", 100, "txn_1")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestServerErrorsRetryThenSucceed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(cashOutResponse{Response: "OK"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "ci", "cs", "")
	err := c.CashOut(context.Background(), "key", "email", 100, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsDoNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "ci", "cs", "")
	err := c.CashOut(context.Background(), "key", "email", 100, "txn_1")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, int32(1), calls.Load())
}
