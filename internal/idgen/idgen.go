// Package idgen provides random identifier generation.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + 32 hex chars (e.g. "req_", "off_", "txn_").
// The prefix makes IDs self-describing in logs and payloads.
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
