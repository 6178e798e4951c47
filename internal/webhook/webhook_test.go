package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilmilha/facilmilha/internal/order"
	"github.com/facilmilha/facilmilha/internal/suitpay"
)

type fakeConfirmer struct {
	calls   int
	lastID  string
	lastTxn string
	outcome order.PaymentOutcome
}

func (f *fakeConfirmer) ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) (order.PaymentOutcome, error) {
	f.calls++
	f.lastID = offerID
	f.lastTxn = gatewayTransactionID
	return f.outcome, nil
}

func newWebhookRouter(f *fakeConfirmer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f).RegisterRoutes(r)
	return r
}

func postNotification(t *testing.T, r *gin.Engine, n Notification) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(n)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/suitpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveAppliesPixPaidOut(t *testing.T) {
	f := &fakeConfirmer{outcome: order.PaymentApplied}
	r := newWebhookRouter(f)

	w := postNotification(t, r, Notification{
		IDTransaction:     "gw_1",
		TypeTransaction:   "PIX",
		StatusTransaction: "PAID_OUT",
		RequestNumber:     "off_1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, "off_1", f.lastID)
	assert.Equal(t, "gw_1", f.lastTxn)
}

func TestReceiveAppliesMixedCasePixPaidOut(t *testing.T) {
	f := &fakeConfirmer{outcome: order.PaymentApplied}
	r := newWebhookRouter(f)

	w := postNotification(t, r, Notification{
		IDTransaction:     "gw_1",
		TypeTransaction:   "Pix",
		StatusTransaction: "Paid_Out",
		RequestNumber:     "off_1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, "off_1", f.lastID)
}

func TestReceiveIgnoresOtherEvents(t *testing.T) {
	f := &fakeConfirmer{outcome: order.PaymentApplied}
	r := newWebhookRouter(f)

	for _, n := range []Notification{
		{TypeTransaction: "BOLETO", StatusTransaction: "PAID_OUT", RequestNumber: "off_1"},
		{TypeTransaction: "PIX", StatusTransaction: "CHARGEBACK", RequestNumber: "off_1"},
		{TypeTransaction: "PIX", StatusTransaction: "WAITING_FOR_APPROVAL", RequestNumber: "off_1"},
	} {
		w := postNotification(t, r, n)
		assert.Equal(t, http.StatusOK, w.Code, "filtered events still acknowledge")
	}
	assert.Equal(t, 0, f.calls)
}

func TestReceiveAcknowledgesUnknownOffer(t *testing.T) {
	f := &fakeConfirmer{outcome: order.PaymentUnknown}
	r := newWebhookRouter(f)

	w := postNotification(t, r, Notification{
		IDTransaction:     "gw_1",
		TypeTransaction:   "PIX",
		StatusTransaction: "PAID_OUT",
		RequestNumber:     "off_missing",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown")
}

func TestReceiveAcknowledgesGarbage(t *testing.T) {
	f := &fakeConfirmer{}
	r := newWebhookRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/suitpay", bytes.NewReader([]byte("not json")))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.calls)
}

func TestPing(t *testing.T) {
	r := newWebhookRouter(&fakeConfirmer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhooks/suitpay", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceiveDropsBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := &fakeConfirmer{outcome: order.PaymentApplied}
	r := gin.New()
	NewHandler(f).WithSignatureCheck("secret").RegisterRoutes(r)

	n := Notification{
		IDTransaction:     "gw_1",
		TypeTransaction:   "PIX",
		StatusTransaction: "PAID_OUT",
		RequestNumber:     "off_1",
	}
	body, err := json.Marshal(n)
	require.NoError(t, err)

	// Missing signature: dropped but acknowledged
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/suitpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.calls)

	// Valid signature: applied
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/suitpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", suitpay.Sign("secret", n.IDTransaction, n.RequestNumber, n.StatusTransaction))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.calls)
}
