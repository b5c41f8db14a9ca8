package payments

import (
	"strings"
	"time"

	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
)

// CardDetails carries the raw card input validated before any gateway call.
// Validation failures are a distinct error kind from gateway failures and
// never reach the gateway.
type CardDetails struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVV      string `json:"cvv"`
	Holder   string `json:"holder,omitempty"`
}

// Last4 returns the trailing digits kept for display and audit.
func (c CardDetails) Last4() string {
	digits := digitsOnly(c.Number)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// Validate runs format, length, luhn and expiry checks against now.
func (c CardDetails) Validate(now time.Time) error {
	digits := digitsOnly(c.Number)
	if digits == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "card number is required").
			WithDetails(map[string]any{"field": "number"})
	}
	if len(digits) < 12 || len(digits) > 19 {
		return pkgerrors.New(pkgerrors.CodeValidation, "card number length is invalid").
			WithDetails(map[string]any{"field": "number"})
	}
	if !luhnValid(digits) {
		return pkgerrors.New(pkgerrors.CodeValidation, "card number failed checksum").
			WithDetails(map[string]any{"field": "number"})
	}

	if c.ExpMonth < 1 || c.ExpMonth > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, "card expiry month is invalid").
			WithDetails(map[string]any{"field": "exp_month"})
	}
	if c.ExpYear < 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "card expiry year must be four digits").
			WithDetails(map[string]any{"field": "exp_year"})
	}
	// A card is valid through the last day of its expiry month.
	expiry := time.Date(c.ExpYear, time.Month(c.ExpMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if !now.Before(expiry) {
		return pkgerrors.New(pkgerrors.CodeValidation, "card is expired").
			WithDetails(map[string]any{"field": "exp_year"})
	}

	cvv := strings.TrimSpace(c.CVV)
	if len(cvv) < 3 || len(cvv) > 4 || digitsOnly(cvv) != cvv {
		return pkgerrors.New(pkgerrors.CodeValidation, "card security code is invalid").
			WithDetails(map[string]any{"field": "cvv"})
	}

	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r != ' ' && r != '-' {
			return ""
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
