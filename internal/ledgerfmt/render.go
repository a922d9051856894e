package ledgerfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fjacquet/ledger-reconcile/internal/models"
)

const (
	postingIndent = "  "
	metaIndent    = "    "
)

var rawValueRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RenderTransaction renders a transaction as journal lines, without a
// trailing blank line. Elided postings are written without an amount, and
// metadata string values are quoted losslessly so arbitrary descriptions
// survive a round trip through the journal text.
func RenderTransaction(txn *models.Transaction) []string {
	header := txn.EntryDate.Format(models.DateLayout) + " " + txn.Flag
	if txn.Payee != "" {
		header += " " + strconv.Quote(txn.Payee)
	}
	header += " " + strconv.Quote(txn.Narration)

	lines := []string{header}
	for _, key := range txn.Meta.Keys() {
		value, _ := txn.Meta.Get(key)
		lines = append(lines, RenderMetadata(key, value))
	}
	for _, posting := range txn.Postings {
		if posting.Elided {
			lines = append(lines, postingIndent+posting.Account)
		} else {
			lines = append(lines, fmt.Sprintf("%s%s    %s", postingIndent, posting.Account, posting.Amount))
		}
		for _, key := range posting.Meta.Keys() {
			value, _ := posting.Meta.Get(key)
			lines = append(lines, RenderMetadata(key, value))
		}
	}
	return lines
}

// RenderMetadata renders one indented metadata line. Date-shaped values are
// written bare, everything else as a quoted string literal.
func RenderMetadata(key, value string) string {
	if rawValueRe.MatchString(value) {
		return metaIndent + key + ": " + value
	}
	return metaIndent + key + ": " + strconv.Quote(value)
}

// RenderOpen renders an account-open directive line.
func RenderOpen(open *models.Open) string {
	line := open.EntryDate.Format(models.DateLayout) + " open " + open.Account
	return strings.TrimRight(line, " ")
}
