package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount represents an exact monetary value with currency.
type Amount struct {
	Number   decimal.Decimal `json:"number" yaml:"number"`
	Currency string          `json:"currency" yaml:"currency"`
}

// NewAmount creates a new Amount with the given number and currency.
func NewAmount(number decimal.Decimal, currency string) Amount {
	return Amount{Number: number, Currency: currency}
}

// NewAmountFromString creates an Amount from a plain decimal string.
func NewAmountFromString(number, currency string) (Amount, error) {
	dec, err := decimal.NewFromString(number)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount string '%s': %w", number, err)
	}
	return Amount{Number: dec, Currency: currency}, nil
}

// Neg returns the negated amount.
func (a Amount) Neg() Amount {
	return Amount{Number: a.Number.Neg(), Currency: a.Currency}
}

// IsZero reports whether the numeric value is zero.
func (a Amount) IsZero() bool {
	return a.Number.IsZero()
}

// Equal reports exact equality of number and currency. 10.00 and 10 are
// equal; 10.00 and 10.001 are not.
func (a Amount) Equal(other Amount) bool {
	return a.Currency == other.Currency && a.Number.Equal(other.Number)
}

// Key returns a canonical string form suitable for use in map keys. Trailing
// zeros do not affect the key, so 10.00 and 10 collide as required for exact
// decimal matching.
func (a Amount) Key() string {
	return a.Number.String() + " " + a.Currency
}

// String renders the amount the way it appears in journal text.
func (a Amount) String() string {
	return a.Number.StringFixed(2) + " " + a.Currency
}
