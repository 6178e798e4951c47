// Package webhook receives payment notifications from the SuitPay gateway.
//
// The gateway retries undelivered notifications, so the handler always
// acknowledges with 200 once the payload has been read. Anything else would
// keep the gateway hammering the endpoint for events we already know about
// or will never match.
package webhook

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/metrics"
	"github.com/facilmilha/facilmilha/internal/order"
	"github.com/facilmilha/facilmilha/internal/suitpay"
)

// PaymentConfirmer applies a confirmed payment to the order it belongs to.
// Implemented by the order service.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, offerID, gatewayTransactionID string) (order.PaymentOutcome, error)
}

// Handler processes gateway notifications.
type Handler struct {
	payments PaymentConfirmer
	secret   string // empty disables signature verification
}

// NewHandler creates a new webhook handler.
func NewHandler(payments PaymentConfirmer) *Handler {
	return &Handler{payments: payments}
}

// WithSignatureCheck enables verification of the X-Signature header against
// the shared client secret. Notifications with a bad signature are dropped
// (but still acknowledged, so the sender learns nothing).
func (h *Handler) WithSignatureCheck(clientSecret string) *Handler {
	h.secret = clientSecret
	return h
}

// RegisterRoutes sets up the webhook endpoints. These sit outside the
// identity middleware; the gateway is not a platform account.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/webhooks/suitpay", h.Ping)
	r.POST("/webhooks/suitpay", h.Receive)
}

// Notification is the gateway's payment event payload. RequestNumber carries
// back the offer id the charge was created with.
type Notification struct {
	IDTransaction     string `json:"idTransaction"`
	TypeTransaction   string `json:"typeTransaction"`
	StatusTransaction string `json:"statusTransaction"`
	RequestNumber     string `json:"requestNumber"`
}

// Ping handles GET /webhooks/suitpay, used by the gateway's endpoint check.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Receive handles POST /webhooks/suitpay
func (h *Handler) Receive(c *gin.Context) {
	var n Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		// Unparseable payloads are acknowledged too; retrying won't fix them.
		logging.L(c.Request.Context()).Warn("unparseable gateway notification", "error", err)
		metrics.WebhookNotificationsTotal.WithLabelValues("unparseable").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	log := logging.L(c.Request.Context()).With(
		"gateway_transaction_id", n.IDTransaction,
		"type", n.TypeTransaction,
		"status", n.StatusTransaction,
	)

	if h.secret != "" {
		sig := c.GetHeader("X-Signature")
		if !suitpay.VerifySignature(h.secret, sig, n.IDTransaction, n.RequestNumber, n.StatusTransaction) {
			log.Warn("gateway notification with bad signature dropped")
			metrics.WebhookNotificationsTotal.WithLabelValues("bad_signature").Inc()
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	// The gateway is not consistent about casing across event types.
	if !strings.EqualFold(n.TypeTransaction, "PIX") || !strings.EqualFold(n.StatusTransaction, "PAID_OUT") {
		log.Debug("ignoring gateway notification outside PIX/PAID_OUT")
		metrics.WebhookNotificationsTotal.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	outcome, err := h.payments.ConfirmPayment(c.Request.Context(), n.RequestNumber, n.IDTransaction)
	if err != nil {
		// Internal failure: acknowledged anyway, the sweepable state lives in
		// the gateway and the buyer can re-trigger via the order screen.
		log.Error("failed to apply payment confirmation", "offer_id", n.RequestNumber, "error", err)
		metrics.WebhookNotificationsTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch outcome {
	case order.PaymentApplied:
		log.Info("payment confirmed", "offer_id", n.RequestNumber)
	case order.PaymentDuplicate:
		log.Info("duplicate payment notification ignored", "offer_id", n.RequestNumber)
	case order.PaymentUnknown:
		log.Warn("payment notification for unknown offer", "offer_id", n.RequestNumber)
	case order.PaymentLate:
		log.Error("payment landed on an expired offer, refund required", "offer_id", n.RequestNumber)
	}
	metrics.WebhookNotificationsTotal.WithLabelValues(string(outcome)).Inc()

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": string(outcome)})
}
