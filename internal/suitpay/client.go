// Package suitpay is the client for the SuitPay PIX payment gateway.
//
// The gateway is the platform's only money rail: inbound buyer charges and
// outbound seller payouts both go through it. Amounts cross the wire in
// reais with two decimals; everything inside the platform stays in centavos.
package suitpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/facilmilha/facilmilha/internal/retry"
)

// ErrGateway wraps any gateway-side failure after retries are exhausted.
var ErrGateway = errors.New("payment gateway error")

// Client calls the SuitPay API.
type Client struct {
	chargeURL    string
	cashOutURL   string
	clientID     string
	clientSecret string
	callbackURL  string
	http         *http.Client
}

// NewClient creates a SuitPay client. callbackURL is where the gateway posts
// payment notifications.
func NewClient(chargeURL, cashOutURL, clientID, clientSecret, callbackURL string) *Client {
	return &Client{
		chargeURL:    chargeURL,
		cashOutURL:   cashOutURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		callbackURL:  callbackURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// reais renders centavos as the decimal the gateway expects.
func reais(centavos int64) float64 {
	return float64(centavos) / 100
}

type chargeRequest struct {
	RequestNumber string       `json:"requestNumber"`
	DueDate       string       `json:"dueDate"`
	Amount        float64      `json:"amount"`
	CallbackURL   string       `json:"callbackUrl"`
	Client        chargeClient `json:"client"`
}

type chargeClient struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
}

type chargeResponse struct {
	IDTransaction     string `json:"idTransaction"`
	PaymentCode       string `json:"paymentCode"`
	PaymentCodeBase64 string `json:"paymentCodeBase64"`
}

// CreateCharge creates a PIX charge and returns the gateway transaction id
// plus the copy-paste code and QR image the buyer pays with.
func (c *Client) CreateCharge(ctx context.Context, requestNumber string, amountCentavos int64, dueDate time.Time, payerName, payerEmail, payerDocument string) (string, string, string, error) {
	body := chargeRequest{
		RequestNumber: requestNumber,
		DueDate:       dueDate.Format("2006-01-02"),
		Amount:        reais(amountCentavos),
		CallbackURL:   c.callbackURL,
		Client: chargeClient{
			Name:     payerName,
			Email:    payerEmail,
			Document: payerDocument,
		},
	}

	var resp chargeResponse
	if err := c.post(ctx, c.chargeURL, body, &resp); err != nil {
		return "", "", "", err
	}
	if resp.IDTransaction == "" || resp.PaymentCode == "" {
		return "", "", "", fmt.Errorf("%w: charge response missing transaction data", ErrGateway)
	}
	return resp.IDTransaction, resp.PaymentCode, resp.PaymentCodeBase64, nil
}

type cashOutRequest struct {
	Key        string  `json:"key"`
	TypeKey    string  `json:"typeKey"`
	Value      float64 `json:"value"`
	ExternalID string  `json:"externalId"`
}

type cashOutResponse struct {
	Response      string `json:"response"`
	IDTransaction string `json:"idTransaction"`
}

// CashOut sends a PIX payout to the given key. externalID deduplicates the
// transfer on the gateway side, so retrying a payout never pays twice.
func (c *Client) CashOut(ctx context.Context, pixKey, keyType string, amountCentavos int64, externalID string) error {
	body := cashOutRequest{
		Key:        pixKey,
		TypeKey:    keyType,
		Value:      reais(amountCentavos),
		ExternalID: externalID,
	}

	var resp cashOutResponse
	if err := c.post(ctx, c.cashOutURL, body, &resp); err != nil {
		return err
	}
	if resp.Response != "OK" {
		return fmt.Errorf("%w: cash out refused: %s", ErrGateway, resp.Response)
	}
	return nil
}

// post sends an authenticated JSON request with retries. Server errors and
// network failures retry with backoff; client errors fail immediately.
func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	return retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build gateway request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("ci", c.clientID)
		req.Header.Set("cs", c.clientSecret)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGateway, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
		case resp.StatusCode >= 400:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("%w: decode response: %v", ErrGateway, err))
		}
		return nil
	})
}
