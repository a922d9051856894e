// Package match maintains the bidirectional account/source mappings and the
// unmatched/matched posting indices used to pair external records with
// journal postings.
package match

import (
	"fmt"
	"sort"
	"time"

	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger sets a custom logger for this package
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// PostingRef points at one posting together with its owning transaction.
type PostingRef struct {
	Txn     *models.Transaction
	Posting *models.Posting

	// seq preserves the order in which postings were indexed so candidate
	// ordering is stable across runs.
	seq int
}

// EffectiveDate returns the posting's explicit date metadata when present,
// otherwise the transaction date.
func (r PostingRef) EffectiveDate() time.Time {
	return r.Txn.PostingDate(r.Posting)
}

// groupKey addresses one cell of the unmatched index.
type groupKey struct {
	account string
	date    time.Time
	amount  string
}

// Index holds both posting indices plus the account/source mapping. A posting
// is in exactly one of {unmatched, matched}; it moves between them only
// through explicit transitions driven by the apply engine.
type Index struct {
	fuzzyDays int

	accountToSource map[string]string
	sourceToAccount map[string]string

	unmatched map[groupKey]map[*models.Posting]PostingRef
	matched   map[models.RecordKey][]PostingRef

	nextSeq int
}

// NewIndex creates an empty index with the given fuzzy date window in days.
func NewIndex(fuzzyDays int) *Index {
	return &Index{
		fuzzyDays:       fuzzyDays,
		accountToSource: make(map[string]string),
		sourceToAccount: make(map[string]string),
		unmatched:       make(map[groupKey]map[*models.Posting]PostingRef),
		matched:         make(map[models.RecordKey][]PostingRef),
	}
}

// AddAccount registers an Open directive. Accounts carrying a source_id
// metadata entry become tracked; a duplicate or conflicting mapping in either
// direction is a fatal configuration error.
func (ix *Index) AddAccount(open *models.Open) error {
	sourceID, ok := open.SourceID()
	if !ok {
		return nil
	}
	if old, ok := ix.accountToSource[open.Account]; ok && old != sourceID {
		return &recerror.ConfigurationError{
			Reason: fmt.Sprintf("duplicate mappings for account %q: %q and %q",
				open.Account, old, sourceID),
		}
	}
	if old, ok := ix.sourceToAccount[sourceID]; ok && old != open.Account {
		return &recerror.ConfigurationError{
			Reason: fmt.Sprintf("duplicate mappings for source id %q: %q and %q",
				sourceID, old, open.Account),
		}
	}
	ix.accountToSource[open.Account] = sourceID
	ix.sourceToAccount[sourceID] = open.Account
	return nil
}

// Tracked reports whether account is reconciled against an external source.
func (ix *Index) Tracked(account string) bool {
	_, ok := ix.accountToSource[account]
	return ok
}

// AccountMap returns a copy of the source-id to account mapping, as consumed
// by feed loaders.
func (ix *Index) AccountMap() map[string]string {
	out := make(map[string]string, len(ix.sourceToAccount))
	for k, v := range ix.sourceToAccount {
		out[k] = v
	}
	return out
}

// fuzzyRange yields every date in the window around date, oldest first.
func (ix *Index) fuzzyRange(date time.Time) []time.Time {
	dates := make([]time.Time, 0, 2*ix.fuzzyDays+1)
	for offset := -ix.fuzzyDays; offset <= ix.fuzzyDays; offset++ {
		dates = append(dates, date.AddDate(0, 0, offset))
	}
	return dates
}

// groupKeys returns the unmatched-index keys under which a posting is filed.
// An explicit posting date disables fuzzy matching: only the exact date is
// used. Otherwise the posting is reachable through every date in the window
// around the transaction date.
func (ix *Index) groupKeys(txn *models.Transaction, posting *models.Posting) []groupKey {
	var dates []time.Time
	if explicit, ok := posting.ExplicitDate(); ok {
		dates = []time.Time{explicit}
	} else {
		dates = ix.fuzzyRange(txn.EntryDate)
	}
	keys := make([]groupKey, 0, len(dates))
	for _, date := range dates {
		keys = append(keys, groupKey{
			account: posting.Account,
			date:    date,
			amount:  posting.Amount.Key(),
		})
	}
	return keys
}

// AddUnmatched registers a posting that has no confirmed source linkage.
func (ix *Index) AddUnmatched(txn *models.Transaction, posting *models.Posting) {
	ref := PostingRef{Txn: txn, Posting: posting, seq: ix.nextSeq}
	ix.nextSeq++
	for _, key := range ix.groupKeys(txn, posting) {
		group, ok := ix.unmatched[key]
		if !ok {
			group = make(map[*models.Posting]PostingRef)
			ix.unmatched[key] = group
		}
		group[posting] = ref
	}
}

// RemoveUnmatched removes a posting from every unmatched cell it occupies.
// Invoked only by the apply engine when a posting gains a source linkage.
func (ix *Index) RemoveUnmatched(txn *models.Transaction, posting *models.Posting) {
	for _, key := range ix.groupKeys(txn, posting) {
		if group, ok := ix.unmatched[key]; ok {
			delete(group, posting)
		}
	}
}

// AddMatched registers a posting that carries a confirmed source linkage
// under its record identity.
func (ix *Index) AddMatched(txn *models.Transaction, posting *models.Posting, sourceData string, date time.Time) {
	key := models.RecordKey{
		Account:    posting.Account,
		Date:       date,
		Amount:     posting.Amount.Key(),
		SourceData: sourceData,
	}
	ref := PostingRef{Txn: txn, Posting: posting, seq: ix.nextSeq}
	ix.nextSeq++
	ix.matched[key] = append(ix.matched[key], ref)
}

// MatchedCounts returns the number of matched postings per record identity,
// used for stale detection against the feed snapshot.
func (ix *Index) MatchedCounts() map[models.RecordKey]int {
	counts := make(map[models.RecordKey]int, len(ix.matched))
	for key, refs := range ix.matched {
		counts[key] = len(refs)
	}
	return counts
}

// Matched returns the matched postings registered under key.
func (ix *Index) Matched(key models.RecordKey) []PostingRef {
	return ix.matched[key]
}

// Candidates returns the unmatched postings that could correspond to the
// record: equal account and exact amount, date within the fuzzy window.
// Postings reachable through several window dates are returned once, sorted
// by effective posting date ascending with ties broken by indexing order.
func (ix *Index) Candidates(record models.ExternalRecord) []PostingRef {
	seen := make(map[*models.Posting]PostingRef)
	for _, date := range ix.fuzzyRange(record.Date) {
		key := groupKey{account: record.Account, date: date, amount: record.Amount.Key()}
		for posting, ref := range ix.unmatched[key] {
			seen[posting] = ref
		}
	}

	refs := make([]PostingRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.SliceStable(refs, func(i, j int) bool {
		di, dj := refs[i].EffectiveDate(), refs[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return refs[i].seq < refs[j].seq
	})

	log.WithFields(logrus.Fields{"record": record.String(), "candidates": len(refs)}).
		Debug("Searched unmatched postings")
	return refs
}

// UnmatchedCount returns the number of distinct unmatched postings, useful
// for diagnostics and tests.
func (ix *Index) UnmatchedCount() int {
	distinct := make(map[*models.Posting]struct{})
	for _, group := range ix.unmatched {
		for posting := range group {
			distinct[posting] = struct{}{}
		}
	}
	return len(distinct)
}
