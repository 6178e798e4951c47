package suitpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the webhook signature for a notification: hex SHA-256 over
// the pipe-joined values keyed by the client secret. The gateway and the
// platform must join the fields in the same order (idTransaction,
// requestNumber, statusTransaction).
func Sign(clientSecret string, values ...string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the expected webhook
// signature for values. Comparison is constant-time.
func VerifySignature(clientSecret, signature string, values ...string) bool {
	expected := Sign(clientSecret, values...)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
