package amountparse

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		assumed  string
		number   string
		currency string
		hasError bool
	}{
		{"Dollar symbol before", "$12.34", "", "12.34", "USD", false},
		{"Euro symbol before", "€0.12", "", "0.12", "EUR", false},
		{"Negative pound", "-£123.45", "", "-123.45", "GBP", false},
		{"Trailing ISO code with separator", "1,234.56 CAD", "", "1234.56", "CAD", false},
		{"Parentheses as negative", "(5.00)", "USD", "-5.00", "USD", false},
		{"Leading ISO code", "CHF 9.99", "", "9.99", "CHF", false},
		{"Plus sign", "+4.20 USD", "", "4.20", "USD", false},
		{"Assumed currency", "10", "USD", "10", "USD", false},
		{"Fraction only", ".5 USD", "", "0.5", "USD", false},
		{"Multiple separators", "1,234,567.89 USD", "", "1234567.89", "USD", false},
		{"Empty string", "", "USD", "", "", true},
		{"Symbol with no digits", "$", "USD", "", "", true},
		{"Symbol with bare dot", "$.", "USD", "", "", true},
		{"Trailing dot", "€0.", "", "", "", true},
		{"No currency anywhere", "1,234,567.89", "", "", "", true},
		{"Separator before decimal point", "1,234,.56 USD", "", "", "", true},
		{"Leading generic text", "total 12.34 USD", "", "", "", true},
		{"Mismatched parenthetical", "(5.00", "USD", "", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			amt, err := Parse(tc.input, tc.assumed)

			if tc.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			expected, derr := decimal.NewFromString(tc.number)
			require.NoError(t, derr)
			assert.True(t, expected.Equal(amt.Number),
				"expected %s but got %s", expected.String(), amt.Number.String())
			assert.Equal(t, tc.currency, amt.Currency)
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		hasError bool
	}{
		{"Plain", "12.34", "12.34", false},
		{"Negative", "-12.34", "-12.34", false},
		{"Parenthesized", "(12.34)", "-12.34", false},
		{"Thousands separators", "1,234.56", "1234.56", false},
		{"Fraction only", ".5", "0.5", false},
		{"Garbage", "abc", "", true},
		{"Doubled separator", "1,,2", "", true},
		{"Separator before decimal point", "1,234,.56", "", true},
		{"Trailing dot", "12.", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := ParseNumber(tc.input)

			if tc.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			expected, derr := decimal.NewFromString(tc.expected)
			require.NoError(t, derr)
			assert.True(t, expected.Equal(dec),
				"expected %s but got %s", expected.String(), dec.String())
		})
	}
}
