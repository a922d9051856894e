package ledgerfmt

import (
	"fmt"

	"fjacquet/ledger-reconcile/internal/models"

	"github.com/shopspring/decimal"
)

// Book resolves elided posting amounts: a transaction may leave at most one
// posting without an amount, and that posting absorbs the negated residual of
// the others. Transactions that cannot be balanced produce balance errors
// without being dropped from the result.
func Book(entries []models.Directive, opts *Options) ([]models.Directive, []error) {
	var errs []error
	for _, entry := range entries {
		txn, ok := entry.(*models.Transaction)
		if !ok {
			continue
		}
		if err := bookTransaction(txn); err != nil {
			errs = append(errs, fmt.Errorf("%s:%d: %w", txn.Loc.Filename, txn.Loc.Line, err))
		}
	}
	return entries, errs
}

func bookTransaction(txn *models.Transaction) error {
	sums := make(map[string]decimal.Decimal)
	var elided *models.Posting
	for _, posting := range txn.Postings {
		if posting.Elided && posting.Amount.Currency == "" {
			if elided != nil {
				return fmt.Errorf("more than one posting without an amount")
			}
			elided = posting
			continue
		}
		cur := posting.Amount.Currency
		sums[cur] = sums[cur].Add(posting.Amount.Number)
	}

	if elided != nil {
		if len(sums) != 1 {
			return fmt.Errorf("cannot infer amount for %s: %d currencies in transaction",
				elided.Account, len(sums))
		}
		for cur, sum := range sums {
			elided.Amount = models.NewAmount(sum.Neg(), cur)
		}
		return nil
	}

	for cur, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("transaction does not balance: %s %s left over", sum.String(), cur)
		}
	}
	return nil
}
