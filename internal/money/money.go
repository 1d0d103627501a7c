// Package money represents naira amounts as integer kobo and handles the
// exact parsing and formatting of user-entered values.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative naira amount in kobo (1/100 naira). The integer
// representation is what gets persisted; decimals exist only at the edges.
type Amount int64

// Zero is the empty amount.
const Zero Amount = 0

// ErrInvalidAmount reports a user-entered amount that is not a non-negative
// two-decimal currency value.
var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// Parse converts a user-entered string like "500" or "50.25" into an Amount.
// Negative values, more than two decimal places, and non-numeric input all
// fail with ErrInvalidAmount.
func Parse(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	if dec.IsNegative() {
		return 0, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, raw)
	}

	kobo := dec.Mul(hundred)
	if !kobo.IsInteger() {
		return 0, fmt.Errorf("%w: more than two decimal places in %q", ErrInvalidAmount, raw)
	}

	return Amount(kobo.IntPart()), nil
}

// FromNaira builds an Amount from a whole-naira value. Negative input maps
// to zero; callers validating user input should use Parse instead.
func FromNaira(naira int64) Amount {
	if naira < 0 {
		return 0
	}
	return Amount(naira * 100)
}

// Kobo returns the raw kobo value for persistence.
func (a Amount) Kobo() int64 {
	return int64(a)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// Add returns the sum of two amounts.
func (a Amount) Add(other Amount) Amount {
	return a + other
}

// String renders the amount as a plain two-decimal number, e.g. "500.00".
func (a Amount) String() string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

// Naira renders the amount prefixed with the currency sign, e.g. "₦500.00".
func (a Amount) Naira() string {
	return "₦" + a.String()
}
