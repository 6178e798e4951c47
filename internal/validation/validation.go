// Package validation provides input validation helpers for the API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 2000

var (
	// pnrRegex validates airline booking locators: exactly 6 alphanumerics,
	// validated after upper-case normalization.
	pnrRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	// airportRegex validates IATA airport codes.
	airportRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	// digitsRegex matches digit-only strings (CPF/CNPJ/phone after stripping).
	digitsRegex = regexp.MustCompile(`^[0-9]+$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// NormalizePNR upper-cases and trims a locator. Validate with IsValidPNR after.
func NormalizePNR(pnr string) string {
	return strings.ToUpper(strings.TrimSpace(pnr))
}

// IsValidPNR checks a normalized locator: exactly 6 alphanumeric characters.
func IsValidPNR(pnr string) bool {
	return pnrRegex.MatchString(pnr)
}

// IsValidAirport checks a normalized IATA airport code.
func IsValidAirport(code string) bool {
	return airportRegex.MatchString(code)
}

// StripNonDigits removes everything but digits (documents, phone numbers).
func StripNonDigits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// IsDigits reports whether s is non-empty and digit-only.
func IsDigits(s string) bool {
	return digitsRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs a set of field validators and collects failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed max length.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveCentavos checks that a money amount is strictly positive.
func PositiveCentavos(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// ValidAirport checks that a field is a 3-letter IATA code (empty allowed; use Required too).
func ValidAirport(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAirport(strings.ToUpper(strings.TrimSpace(value))) {
			return &ValidationError{Field: field, Message: "must be a 3-letter IATA airport code"}
		}
		return nil
	}
}
