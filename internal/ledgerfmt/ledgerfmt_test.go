package ledgerfmt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fjacquet/ledger-reconcile/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJournal = `1900-01-01 open Assets:Checking
  source_id: "mint-checking"
1900-01-01 open Expenses:Misc

2020-01-05 * "Coffee shop"
  Assets:Checking  -4.50 USD
    source_data: "csv-desc:COFFEE SHOP"
    date: 2020-01-06
  Expenses:Misc

2020-02-01 balance Assets:Checking 95.50 USD
2020-02-01 price USD 1.30 CAD
`

func TestParseString(t *testing.T) {
	entries, errs, _ := ParseString(sampleJournal)
	require.Empty(t, errs)
	require.Len(t, entries, 5)

	open, ok := entries[0].(*models.Open)
	require.True(t, ok)
	assert.Equal(t, "Assets:Checking", open.Account)
	sourceID, ok := open.SourceID()
	require.True(t, ok)
	assert.Equal(t, "mint-checking", sourceID)
	assert.Equal(t, 1, open.Loc.Line)

	txn, ok := entries[2].(*models.Transaction)
	require.True(t, ok)
	assert.Equal(t, "Coffee shop", txn.Narration)
	assert.Equal(t, "*", txn.Flag)
	assert.Equal(t, models.NewDate(2020, time.January, 5), txn.EntryDate)
	assert.Equal(t, 5, txn.Loc.Line)
	require.Len(t, txn.Postings, 2)

	first := txn.Postings[0]
	assert.Equal(t, "Assets:Checking", first.Account)
	assert.True(t, decimal.NewFromFloat(-4.5).Equal(first.Amount.Number))
	assert.Equal(t, "USD", first.Amount.Currency)
	assert.Equal(t, 6, first.Loc.Line)
	assert.Equal(t, []string{"csv-desc:COFFEE SHOP"}, first.SourceDataValues())
	postingDate, ok := first.ExplicitDate()
	require.True(t, ok)
	assert.Equal(t, models.NewDate(2020, time.January, 6), postingDate)

	second := txn.Postings[1]
	assert.Equal(t, "Expenses:Misc", second.Account)
	assert.True(t, second.Elided)

	balance, ok := entries[3].(*models.Balance)
	require.True(t, ok)
	assert.Equal(t, "Assets:Checking", balance.Account)

	price, ok := entries[4].(*models.Price)
	require.True(t, ok)
	assert.Equal(t, "USD", price.Commodity)
	assert.Equal(t, "CAD", price.Amount.Currency)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Garbage top level", "this is not a directive\n"},
		{"Bad date", "2020-13-45 * \"x\"\n  A:B  1 USD\n  C:D\n"},
		{"Single posting", "2020-01-01 * \"x\"\n  Assets:Checking  1.00 USD\n"},
		{"Bad posting amount", "2020-01-01 * \"x\"\n  Assets:Checking  abc USD\n  Expenses:Misc\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, errs, _ := ParseString(tc.input)
			assert.NotEmpty(t, errs)
		})
	}
}

func TestParseFileFollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	included := filepath.Join(dir, "accounts.journal")
	require.NoError(t, os.WriteFile(included,
		[]byte("1900-01-01 open Assets:Checking\n"), 0o644))
	main := filepath.Join(dir, "main.journal")
	require.NoError(t, os.WriteFile(main,
		[]byte("include \"accounts.journal\"\n\n2020-01-01 * \"x\"\n  Assets:Checking  1.00 USD\n  Expenses:Misc\n"), 0o644))

	entries, errs, opts := ParseFile(main)
	require.Empty(t, errs)
	require.Len(t, entries, 2)
	assert.Len(t, opts.Filenames, 2)

	open, ok := entries[0].(*models.Open)
	require.True(t, ok)
	assert.Equal(t, included, open.Loc.Filename)
}

func TestBookFillsElidedPosting(t *testing.T) {
	entries, errs, opts := ParseString("2020-01-01 * \"x\"\n  Assets:Checking  10.00 USD\n  Expenses:Misc\n")
	require.Empty(t, errs)

	entries, berrs := Book(entries, opts)
	require.Empty(t, berrs)

	txn := entries[0].(*models.Transaction)
	target := txn.Postings[1]
	assert.True(t, decimal.NewFromInt(-10).Equal(target.Amount.Number))
	assert.Equal(t, "USD", target.Amount.Currency)
}

func TestBookErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Two elided postings", "2020-01-01 * \"x\"\n  Assets:Checking\n  Expenses:Misc\n"},
		{"Unbalanced", "2020-01-01 * \"x\"\n  Assets:Checking  10.00 USD\n  Expenses:Misc  -9.00 USD\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, errs, opts := ParseString(tc.input)
			require.Empty(t, errs)
			_, berrs := Book(entries, opts)
			assert.NotEmpty(t, berrs)
		})
	}
}

func TestRenderTransactionRoundTrip(t *testing.T) {
	txn := &models.Transaction{
		EntryDate: models.NewDate(2020, time.January, 6),
		Flag:      "*",
		Narration: `COFFEE "TO GO"`,
		Meta:      models.NewMeta(),
	}
	tracked := &models.Posting{
		Account: "Assets:Checking",
		Amount:  mustAmount(t, "10.00", "USD"),
		Meta:    models.NewMeta(),
	}
	tracked.Meta.Set("source_data", `csv-desc:COFFEE "TO GO"`)
	tracked.Meta.Set("date", "2020-01-06")
	target := &models.Posting{Account: "Expenses:Misc", Elided: true, Meta: models.NewMeta()}
	txn.Postings = []*models.Posting{tracked, target}

	lines := RenderTransaction(txn)
	assert.Equal(t, []string{
		`2020-01-06 * "COFFEE \"TO GO\""`,
		`  Assets:Checking    10.00 USD`,
		`    source_data: "csv-desc:COFFEE \"TO GO\""`,
		`    date: 2020-01-06`,
		`  Expenses:Misc`,
	}, lines)

	entries, errs, _ := ParseString(joinLines(lines))
	require.Empty(t, errs)
	require.Len(t, entries, 1)
	parsed := entries[0].(*models.Transaction)
	assert.Equal(t, txn.Narration, parsed.Narration)
	assert.Equal(t, []string{`csv-desc:COFFEE "TO GO"`}, parsed.Postings[0].SourceDataValues())
}

func TestRenderOpen(t *testing.T) {
	open := &models.Open{
		EntryDate: models.NewDate(1900, time.January, 1),
		Account:   "Expenses:Fuel",
	}
	assert.Equal(t, "1900-01-01 open Expenses:Fuel", RenderOpen(open))
}

func mustAmount(t *testing.T, number, currency string) models.Amount {
	t.Helper()
	amount, err := models.NewAmountFromString(number, currency)
	require.NoError(t, err)
	return amount
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
