// Package amountparse parses locale-formatted currency strings into exact
// decimal amounts. Parentheses denote negative values, currency may appear as
// a symbol or a 3-letter ISO code before or after the number, and thousands
// separators are tolerated. Nothing is parsed on a best-effort basis: any
// form outside the grammar is an error.
package amountparse

import (
	"regexp"
	"strings"

	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger sets a custom logger for this package
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

var (
	signRe   = regexp.MustCompile(`^(-|\+)([\s\S]*)$`)
	parenRe  = regexp.MustCompile(`^\(([\s\S]*)\)$`)
	numberRe = regexp.MustCompile(`^(?:[0-9](?:,?[0-9])*(?:\.[0-9]+)?|\.[0-9]+)$`)
	amountRe = regexp.MustCompile(
		`^(?:\([^)]+\))?\s*([\$€£]|[A-Z]{3})?\s*` +
			`([0-9](?:,?[0-9])*(?:\.[0-9]+)?|\.[0-9]+)` +
			`(?:\s+([\$€£]|[A-Z]{3}))?$`)
)

// splitSign strips a leading sign or an enclosing-parentheses negative form
// and returns the sign together with the remaining text.
func splitSign(text string) (int, string) {
	text = strings.TrimSpace(text)
	if m := signRe.FindStringSubmatch(text); m != nil {
		sign := 1
		if m[1] == "-" {
			sign = -1
		}
		return sign, strings.TrimSpace(m[2])
	}
	if m := parenRe.FindStringSubmatch(text); m != nil {
		return -1, strings.TrimSpace(m[1])
	}
	return 1, text
}

// ParseNumber parses a plain signed number, treating a parenthesized value as
// negative. Thousands separators are permitted under the same numeric grammar
// Parse uses.
func ParseNumber(text string) (decimal.Decimal, error) {
	sign, rest := splitSign(text)
	if !numberRe.MatchString(rest) {
		return decimal.Decimal{}, &recerror.ParseError{Input: text, Reason: "invalid number"}
	}
	dec, err := decimal.NewFromString(strings.ReplaceAll(rest, ",", ""))
	if err != nil {
		return decimal.Decimal{}, &recerror.ParseError{Input: text, Reason: "invalid number", Err: err}
	}
	if sign < 0 {
		dec = dec.Neg()
	}
	return dec, nil
}

// Parse parses a number and currency. If no currency is present in the text,
// assumedCurrency is used; an empty assumedCurrency then makes the parse fail.
func Parse(text string, assumedCurrency string) (models.Amount, error) {
	if text == "" {
		return models.Amount{}, &recerror.ParseError{Input: text, Reason: "empty amount"}
	}
	sign, rest := splitSign(text)

	m := amountRe.FindStringSubmatch(rest)
	if m == nil {
		return models.Amount{}, &recerror.ParseError{Input: text, Reason: "unrecognized amount form"}
	}

	var currency string
	switch {
	case m[1] != "":
		currency = resolveCurrency(m[1])
	case m[3] != "":
		currency = resolveCurrency(m[3])
	case assumedCurrency != "":
		currency = assumedCurrency
	default:
		return models.Amount{}, &recerror.ParseError{Input: text, Reason: "unable to determine currency"}
	}

	dec, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return models.Amount{}, &recerror.ParseError{Input: text, Reason: "invalid number", Err: err}
	}
	if sign < 0 {
		dec = dec.Neg()
	}

	log.WithFields(logrus.Fields{"input": text, "number": dec.String(), "currency": currency}).
		Trace("Parsed amount")
	return models.NewAmount(dec, currency), nil
}

// resolveCurrency maps a matched currency token to an ISO code. Symbols are
// translated; a 3-letter token is already a code.
func resolveCurrency(token string) string {
	if code, ok := currencySymbols[token]; ok {
		return code
	}
	return token
}
