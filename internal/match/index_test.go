package match

import (
	"testing"
	"time"

	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAccount(account, sourceID string) *models.Open {
	meta := models.NewMeta()
	if sourceID != "" {
		meta.Set(models.SourceIDKey, sourceID)
	}
	return &models.Open{
		EntryDate: models.NewDate(1900, time.January, 1),
		Account:   account,
		Meta:      meta,
	}
}

func newPosting(t *testing.T, account, number, currency string) *models.Posting {
	t.Helper()
	amount, err := models.NewAmountFromString(number, currency)
	require.NoError(t, err)
	return &models.Posting{Account: account, Amount: amount, Meta: models.NewMeta()}
}

func newTxn(date time.Time, postings ...*models.Posting) *models.Transaction {
	return &models.Transaction{
		EntryDate: date,
		Flag:      "*",
		Postings:  postings,
		Meta:      models.NewMeta(),
	}
}

func record(account string, date time.Time, number, currency, sourceData string) models.ExternalRecord {
	amount, _ := models.NewAmountFromString(number, currency)
	return models.ExternalRecord{Account: account, Date: date, Amount: amount, SourceData: sourceData}
}

func TestAddAccountDuplicateMappings(t *testing.T) {
	ix := NewIndex(3)
	require.NoError(t, ix.AddAccount(openAccount("Assets:Checking", "mint-1")))

	// Re-declaring the identical mapping is fine.
	require.NoError(t, ix.AddAccount(openAccount("Assets:Checking", "mint-1")))

	var cfgErr *recerror.ConfigurationError
	err := ix.AddAccount(openAccount("Assets:Checking", "mint-2"))
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfgErr)

	err = ix.AddAccount(openAccount("Assets:Savings", "mint-1"))
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCandidatesFuzzyWindow(t *testing.T) {
	ix := NewIndex(3)
	require.NoError(t, ix.AddAccount(openAccount("Assets:Checking", "mint-1")))

	posting := newPosting(t, "Assets:Checking", "10.00", "USD")
	txn := newTxn(models.NewDate(2020, time.January, 5), posting,
		newPosting(t, "Expenses:Misc", "-10.00", "USD"))
	ix.AddUnmatched(txn, posting)

	// Within the window on both sides.
	for _, day := range []int{2, 5, 8} {
		rec := record("Assets:Checking", models.NewDate(2020, time.January, day), "10.00", "USD", "d")
		assert.Len(t, ix.Candidates(rec), 1, "day %d must match", day)
	}
	// Just outside the window.
	for _, day := range []int{1, 9} {
		rec := record("Assets:Checking", models.NewDate(2020, time.January, day), "10.00", "USD", "d")
		assert.Empty(t, ix.Candidates(rec), "day %d must not match", day)
	}
}

func TestCandidatesRequireExactAmount(t *testing.T) {
	ix := NewIndex(3)
	posting := newPosting(t, "Assets:Checking", "10.00", "USD")
	txn := newTxn(models.NewDate(2020, time.January, 5), posting)
	ix.AddUnmatched(txn, posting)

	rec := record("Assets:Checking", models.NewDate(2020, time.January, 5), "10.001", "USD", "d")
	assert.Empty(t, ix.Candidates(rec))

	// Trailing zeros do not affect exactness.
	rec = record("Assets:Checking", models.NewDate(2020, time.January, 5), "10", "USD", "d")
	assert.Len(t, ix.Candidates(rec), 1)
}

func TestExplicitPostingDateDisablesFuzzyMatching(t *testing.T) {
	ix := NewIndex(3)
	posting := newPosting(t, "Assets:Checking", "10.00", "USD")
	posting.Meta.Set(models.PostingDateKey, "2020-01-10")
	txn := newTxn(models.NewDate(2020, time.January, 5), posting)
	ix.AddUnmatched(txn, posting)

	// The transaction date itself is not a key anymore...
	rec := record("Assets:Checking", models.NewDate(2020, time.January, 5), "10.00", "USD", "d")
	assert.Empty(t, ix.Candidates(rec))

	// ...but the explicit date is reachable through the record's own window.
	rec = record("Assets:Checking", models.NewDate(2020, time.January, 12), "10.00", "USD", "d")
	assert.Len(t, ix.Candidates(rec), 1)
}

func TestCandidatesDeduplicateAndSort(t *testing.T) {
	ix := NewIndex(3)

	later := newPosting(t, "Assets:Checking", "10.00", "USD")
	laterTxn := newTxn(models.NewDate(2020, time.January, 7), later,
		newPosting(t, "Expenses:Misc", "-10.00", "USD"))
	ix.AddUnmatched(laterTxn, later)

	earlier := newPosting(t, "Assets:Checking", "10.00", "USD")
	earlierTxn := newTxn(models.NewDate(2020, time.January, 4), earlier,
		newPosting(t, "Expenses:Misc", "-10.00", "USD"))
	ix.AddUnmatched(earlierTxn, earlier)

	rec := record("Assets:Checking", models.NewDate(2020, time.January, 6), "10.00", "USD", "d")
	refs := ix.Candidates(rec)
	require.Len(t, refs, 2, "each posting appears once despite multiple window dates")
	assert.Same(t, earlier, refs[0].Posting, "candidates sorted by effective date ascending")
	assert.Same(t, later, refs[1].Posting)
}

func TestRemoveUnmatchedAndMatchedTransition(t *testing.T) {
	ix := NewIndex(3)
	posting := newPosting(t, "Assets:Checking", "10.00", "USD")
	txn := newTxn(models.NewDate(2020, time.January, 5), posting)
	ix.AddUnmatched(txn, posting)
	require.Equal(t, 1, ix.UnmatchedCount())

	ix.RemoveUnmatched(txn, posting)
	assert.Equal(t, 0, ix.UnmatchedCount())

	date := models.NewDate(2020, time.January, 6)
	ix.AddMatched(txn, posting, "csv-desc:X", date)
	counts := ix.MatchedCounts()
	key := models.RecordKey{
		Account:    "Assets:Checking",
		Date:       date,
		Amount:     posting.Amount.Key(),
		SourceData: "csv-desc:X",
	}
	assert.Equal(t, 1, counts[key])
	require.Len(t, ix.Matched(key), 1)
	assert.Same(t, posting, ix.Matched(key)[0].Posting)
}
