// Package reconcile drives the matching of external records against journal
// postings and commits the operator's chosen candidates to journal text. A
// Session owns the parsed entries, the line store and the matching index,
// and is the single flow of control allowed to mutate any of them.
package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"fjacquet/ledger-reconcile/internal/classify"
	"fjacquet/ledger-reconcile/internal/feed"
	"fjacquet/ledger-reconcile/internal/journal"
	"fjacquet/ledger-reconcile/internal/ledgerfmt"
	"fjacquet/ledger-reconcile/internal/match"
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

// OutputRule routes new open directives for matching accounts to a file.
// The pattern is anchored at the start of the account name.
type OutputRule struct {
	Pattern  string
	Filename string
}

// Options configures a reconciliation session.
type Options struct {
	// Journal is the input journal file. Includes are followed.
	Journal string

	// Output receives appended transactions and, absent a matching output
	// rule, new open directives. It must be reachable from Journal through
	// includes for new entries to survive a reload. Defaults to Journal.
	Output string

	// FuzzyMatchDays is the ± day tolerance when matching by date.
	FuzzyMatchDays int

	// AccountLimit confines reconciliation to accounts fully matching this
	// regexp. Empty means every tracked account.
	AccountLimit string

	// DefaultAccount is the target account proposed for new transactions
	// when no classifier prediction is available.
	DefaultAccount string

	// AssumedCurrency applies to feed amounts carrying no currency.
	AssumedCurrency string

	// AccountOutputs routes new open directives, first match wins.
	AccountOutputs []OutputRule
}

type outputRoute struct {
	re       *regexp.Regexp
	filename string
}

// Session is the in-memory reconciliation state. It is rebuilt from scratch
// on every (re)load; within a session, applied candidates augment it
// incrementally.
type Session struct {
	opts Options

	store   *journal.Store
	index   *match.Index
	entries []models.Directive

	journalFiles map[string]struct{}
	allAccounts  map[string]struct{}

	examples   []classify.Example
	classifier *classify.Classifier

	limitRe *regexp.Regexp
	routes  []outputRoute

	feedPaths []string
	pending   []models.ExternalRecord
	cursor    int
}

// NewSession parses and books the journal, builds the matching index and
// trains the classifier from the journal's matched postings. Parse or
// booking errors are fatal.
func NewSession(opts Options) (*Session, error) {
	if opts.Journal == "" {
		return nil, &recerror.ConfigurationError{Reason: "no journal file configured"}
	}
	if opts.Output == "" {
		opts.Output = opts.Journal
	}
	if opts.DefaultAccount == "" {
		opts.DefaultAccount = "Expenses:Unknown"
	}

	s := &Session{
		opts:         opts,
		store:        journal.NewStore(),
		index:        match.NewIndex(opts.FuzzyMatchDays),
		journalFiles: make(map[string]struct{}),
		allAccounts:  make(map[string]struct{}),
	}

	if opts.AccountLimit != "" {
		re, err := regexp.Compile("^(?:" + opts.AccountLimit + ")$")
		if err != nil {
			return nil, &recerror.ConfigurationError{Reason: "invalid account limit pattern", Err: err}
		}
		s.limitRe = re
	}
	for _, rule := range opts.AccountOutputs {
		re, err := regexp.Compile("^(?:" + rule.Pattern + ")")
		if err != nil {
			return nil, &recerror.ConfigurationError{
				Reason: fmt.Sprintf("invalid account output pattern %q", rule.Pattern),
				Err:    err,
			}
		}
		s.routes = append(s.routes, outputRoute{re: re, filename: rule.Filename})
	}

	log.WithField("file", opts.Journal).Info("Parsing journal")
	entries, parseErrs, parseOpts := ledgerfmt.ParseFile(opts.Journal)
	if len(parseErrs) > 0 {
		return nil, &recerror.ConfigurationError{
			Reason: "journal has parse errors",
			Err:    errors.Join(parseErrs...),
		}
	}
	entries, bookErrs := ledgerfmt.Book(entries, parseOpts)
	if len(bookErrs) > 0 {
		return nil, &recerror.ConfigurationError{
			Reason: "journal has booking errors",
			Err:    errors.Join(bookErrs...),
		}
	}
	s.entries = entries

	for _, filename := range parseOpts.Filenames {
		s.journalFiles[journal.Normalize(filename)] = struct{}{}
	}
	s.journalFiles[journal.Normalize(opts.Journal)] = struct{}{}
	for path := range s.journalFiles {
		if _, err := s.store.Lines(path); err != nil {
			return nil, &recerror.ConfigurationError{Reason: "cannot cache journal file", Err: err}
		}
	}

	if err := s.processAccounts(); err != nil {
		return nil, err
	}
	s.processEntries()

	if err := s.Retrain(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"entries":   len(s.entries),
		"unmatched": s.index.UnmatchedCount(),
		"examples":  len(s.examples),
	}).Info("Loaded journal")
	return s, nil
}

// processAccounts populates the bidirectional account/source mapping from
// Open directive metadata.
func (s *Session) processAccounts() error {
	for _, entry := range s.entries {
		open, ok := entry.(*models.Open)
		if !ok {
			continue
		}
		s.allAccounts[open.Account] = struct{}{}
		if err := s.index.AddAccount(open); err != nil {
			return err
		}
	}
	return nil
}

// processEntries files every tracked posting into the matched or unmatched
// index depending on whether it already carries a source linkage.
func (s *Session) processEntries() {
	for _, entry := range s.entries {
		txn, ok := entry.(*models.Transaction)
		if !ok {
			continue
		}
		for _, posting := range txn.Postings {
			if !s.index.Tracked(posting.Account) {
				continue
			}
			values := posting.SourceDataValues()
			if len(values) == 0 {
				s.index.AddUnmatched(txn, posting)
				continue
			}
			// Each alias value consumes one feed record, so duplicate
			// downloaded rows resolving to this line count correctly.
			date := txn.PostingDate(posting)
			for _, sourceData := range values {
				s.registerMatched(txn, posting, sourceData, date)
			}
		}
	}
}

// registerMatched records a confirmed source linkage and, for two-posting
// transactions, harvests a training example mapping the descriptor to the
// chosen counter account.
func (s *Session) registerMatched(txn *models.Transaction, posting *models.Posting, sourceData string, date time.Time) {
	s.index.AddMatched(txn, posting, sourceData, date)

	if len(txn.Postings) != 2 {
		return
	}
	other := txn.Postings[0]
	if other == posting {
		other = txn.Postings[1]
	}
	features, err := classify.Features(posting.Account, sourceData, posting.Amount)
	if err != nil {
		log.WithError(err).Warn("Skipping training example with unsupported descriptor")
		return
	}
	s.examples = append(s.examples, classify.Example{Features: features, Target: other.Account})
}

// LoadFeed loads external records from the given files, consumes the ones
// the journal already matches, and keeps the rest pending in ascending date
// order. Matched postings left unconsumed mean the journal references
// records missing upstream: that aborts with a StaleEntryError naming every
// such posting.
func (s *Session) LoadFeed(paths ...string) error {
	opts := feed.Options{
		Accounts:        s.index.AccountMap(),
		AssumedCurrency: s.opts.AssumedCurrency,
	}
	var records []models.ExternalRecord
	for _, path := range paths {
		loaded, err := feed.Load(path, opts)
		if err != nil {
			return err
		}
		records = append(records, loaded...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})

	remaining := s.index.MatchedCounts()
	var pending []models.ExternalRecord
	for _, record := range records {
		key := record.Key()
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		if s.limitRe == nil || s.limitRe.MatchString(record.Account) {
			pending = append(pending, record)
		}
	}

	var stale []recerror.StaleEntry
	for key, count := range remaining {
		if count == 0 {
			continue
		}
		for _, ref := range s.index.Matched(key) {
			stale = append(stale, recerror.StaleEntry{
				File:       ref.Posting.Loc.Filename,
				Line:       ref.Posting.Loc.Line,
				Date:       key.Date,
				SourceData: key.SourceData,
			})
		}
	}
	if len(stale) > 0 {
		sort.Slice(stale, func(i, j int) bool {
			if stale[i].File != stale[j].File {
				return stale[i].File < stale[j].File
			}
			return stale[i].Line < stale[j].Line
		})
		return &recerror.StaleEntryError{Entries: stale}
	}

	s.feedPaths = paths
	s.pending = pending
	s.cursor = 0
	log.WithFields(logrus.Fields{"records": len(records), "pending": len(pending)}).
		Info("Loaded external feed")
	return nil
}

// Next returns the current pending record, if any. Records are processed
// strictly in ascending date order, one at a time.
func (s *Session) Next() (models.ExternalRecord, bool) {
	if s.cursor >= len(s.pending) {
		return models.ExternalRecord{}, false
	}
	return s.pending[s.cursor], true
}

// Skip abandons the current record without touching journal state.
func (s *Session) Skip() {
	s.advance()
}

// Remaining returns the number of pending records, the current one included.
func (s *Session) Remaining() int {
	return len(s.pending) - s.cursor
}

func (s *Session) advance() {
	if s.cursor < len(s.pending) {
		s.cursor++
	}
}

// CheckModified reports whether any journal file changed on disk out of band.
func (s *Session) CheckModified() (bool, error) {
	for path := range s.journalFiles {
		modified, err := s.store.CheckModified(path)
		if err != nil {
			return false, err
		}
		if modified {
			return true, nil
		}
	}
	return false, nil
}

// Reload discards all in-memory state and rebuilds it from disk, re-loading
// the feed when one was loaded before. There is no fine-grained merge of
// concurrent edits: the on-disk journal always wins.
func (s *Session) Reload() error {
	fresh, err := NewSession(s.opts)
	if err != nil {
		return err
	}
	if len(s.feedPaths) > 0 {
		if err := fresh.LoadFeed(s.feedPaths...); err != nil {
			return err
		}
	}
	*s = *fresh
	return nil
}

// Retrain rebuilds the classifier from the accumulated training examples.
// Too few distinct target accounts leaves prediction on the default account.
func (s *Session) Retrain() error {
	classifier, err := classify.Train(s.examples)
	if errors.Is(err, classify.ErrNotEnoughClasses) {
		s.classifier = nil
		return nil
	}
	if err != nil {
		return err
	}
	s.classifier = classifier
	log.WithField("accuracy", classifier.Accuracy(s.examples)).Info("Classifier accuracy on training data")
	return nil
}

// predictTarget returns the classifier's target account for the record,
// falling back to the configured default.
func (s *Session) predictTarget(record models.ExternalRecord) string {
	if s.classifier == nil {
		return s.opts.DefaultAccount
	}
	features, err := classify.Features(record.Account, record.SourceData, record.Amount)
	if err != nil {
		log.WithError(err).Warn("Cannot derive features, using default account")
		return s.opts.DefaultAccount
	}
	return s.classifier.Predict(features)
}

// filenameForAccount picks the file that receives a new open directive for
// account, per the configured output rules. First match wins.
func (s *Session) filenameForAccount(account string) string {
	for _, route := range s.routes {
		if route.re.MatchString(account) {
			return route.filename
		}
	}
	return s.opts.Output
}

func (s *Session) knownAccount(account string) bool {
	_, ok := s.allAccounts[account]
	return ok
}

// remapLocations pushes every tracked location in the edited file through
// the line map returned by a ReplaceRange edit. Locations in other files are
// unaffected.
func (s *Session) remapLocations(path string, lineMap journal.LineMap) {
	for _, entry := range s.entries {
		remapLocation(entry.Location(), path, lineMap)
		if txn, ok := entry.(*models.Transaction); ok {
			for _, posting := range txn.Postings {
				remapLocation(&posting.Loc, path, lineMap)
			}
		}
	}
}

func remapLocation(loc *models.FileLocation, path string, lineMap journal.LineMap) {
	if journal.Normalize(loc.Filename) != path {
		return
	}
	if newLine, ok := lineMap[loc.Line]; ok {
		loc.Line = newLine
	}
}
