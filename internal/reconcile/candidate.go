package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"fjacquet/ledger-reconcile/internal/classify"
	"fjacquet/ledger-reconcile/internal/journal"
	"fjacquet/ledger-reconcile/internal/ledgerfmt"
	"fjacquet/ledger-reconcile/internal/match"
	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/sirupsen/logrus"
)

// continuationRe matches journal lines belonging to the transaction started
// on a previous line: whitespace followed by a non-whitespace character.
var continuationRe = regexp.MustCompile(`^\s+\S`)

// Candidate is one way to commit the current external record to the journal.
// Apply must not be invoked twice for the same record without re-deriving
// state, and a ConcurrentModificationError from Apply requires a full Reload
// before any further mutation.
type Candidate interface {
	// Description is a one-line summary for the operator.
	Description() string
	// Preview returns the journal text the candidate would produce.
	Preview() []string
	// Apply commits the candidate, returning the affected transaction and
	// posting. On success the session advances to the next record.
	Apply() (*models.Transaction, *models.Posting, error)
}

// Candidates returns the ways the current pending record can be committed:
// one LinkCandidate per unmatched posting with equal account and exact
// amount within the fuzzy window, date ascending, plus a final
// CreateCandidate whose target account comes from the classifier. There is no confidence
// scoring; the operator chooses.
func (s *Session) Candidates() ([]Candidate, error) {
	record, ok := s.Next()
	if !ok {
		return nil, nil
	}

	var candidates []Candidate
	for _, ref := range s.index.Candidates(record) {
		candidates = append(candidates, &LinkCandidate{session: s, record: record, ref: ref})
	}
	create, err := newCreateCandidate(s, record, s.predictTarget(record))
	if err != nil {
		return nil, err
	}
	return append(candidates, create), nil
}

// LinkCandidate annotates an existing unmatched posting with the record's
// source linkage.
type LinkCandidate struct {
	session *Session
	record  models.ExternalRecord
	ref     match.PostingRef
}

func (c *LinkCandidate) Description() string {
	loc := c.ref.Posting.Loc
	return fmt.Sprintf("link posting at %s:%d (%s)",
		loc.Filename, loc.Line, c.ref.EffectiveDate().Format(models.DateLayout))
}

// Preview returns the transaction's rewritten text.
func (c *LinkCandidate) Preview() []string {
	changes, _, _, err := c.lineChanges()
	if err != nil {
		return nil
	}
	lines := make([]string, 0, len(changes))
	for _, change := range changes {
		lines = append(lines, change.Text)
	}
	return lines
}

// lineChanges builds the edit covering the owning transaction's exact line
// span, with the new metadata lines inserted immediately after the posting's
// own line: the source identifier (quoted losslessly) and, only if the
// posting lacks an explicit date, a posting-date line.
func (c *LinkCandidate) lineChanges() ([]journal.LineChange, int, int, error) {
	txn, posting := c.ref.Txn, c.ref.Posting
	lines, err := c.session.store.Lines(txn.Loc.Filename)
	if err != nil {
		return nil, 0, 0, err
	}
	start := txn.Loc.Line
	end := transactionEnd(lines, start)
	_, hasExplicitDate := posting.ExplicitDate()

	changes := make([]journal.LineChange, 0, end-start+2)
	for old := start; old < end; old++ {
		changes = append(changes, journal.LineChange{Kind: journal.LineKeep, Text: lines[old-1]})
		if old != posting.Loc.Line {
			continue
		}
		changes = append(changes, journal.LineChange{
			Kind: journal.LineInsert,
			Text: ledgerfmt.RenderMetadata(models.SourceDataKeys[0], c.record.SourceData),
		})
		if !hasExplicitDate {
			changes = append(changes, journal.LineChange{
				Kind: journal.LineInsert,
				Text: ledgerfmt.RenderMetadata(models.PostingDateKey, c.record.Date.Format(models.DateLayout)),
			})
		}
	}
	return changes, start, end, nil
}

// Apply rewrites the transaction's lines, pushes every tracked location
// through the returned line map and moves the posting unmatched to matched.
func (c *LinkCandidate) Apply() (*models.Transaction, *models.Posting, error) {
	txn, posting := c.ref.Txn, c.ref.Posting
	changes, start, end, err := c.lineChanges()
	if err != nil {
		return nil, nil, err
	}
	_, hasExplicitDate := posting.ExplicitDate()

	lineMap, err := c.session.store.ReplaceRange(txn.Loc.Filename, start, end, changes)
	if err != nil {
		return nil, nil, err
	}
	c.session.remapLocations(journal.Normalize(txn.Loc.Filename), lineMap)

	// The unmatched cells are keyed off the pre-edit metadata, so the
	// posting leaves the index before its metadata changes.
	c.session.index.RemoveUnmatched(txn, posting)
	posting.Meta.Set(models.SourceDataKeys[0], c.record.SourceData)
	if !hasExplicitDate {
		posting.Meta.Set(models.PostingDateKey, c.record.Date.Format(models.DateLayout))
	}
	c.session.registerMatched(txn, posting, c.record.SourceData, c.record.Date)

	c.session.advance()
	log.WithFields(logrus.Fields{
		"file": posting.Loc.Filename,
		"line": posting.Loc.Line,
	}).Info("Linked existing posting")
	return txn, posting, nil
}

// CreateCandidate appends a brand-new transaction for the record, posting
// the amount against a target account chosen by the classifier and editable
// by the operator.
type CreateCandidate struct {
	session *Session
	record  models.ExternalRecord

	// Target is the counter account. It may be overridden before Apply.
	Target string

	narration string
}

func newCreateCandidate(s *Session, record models.ExternalRecord, target string) (*CreateCandidate, error) {
	narration, err := classify.Narration(record.SourceData)
	if err != nil {
		return nil, err
	}
	return &CreateCandidate{session: s, record: record, Target: target, narration: narration}, nil
}

func (c *CreateCandidate) Description() string {
	return fmt.Sprintf("new transaction with target %s", c.Target)
}

// transaction builds the in-memory form of the new entry: the tracked
// posting carries the amount plus source and date metadata, the target
// posting is elided so its amount is implied.
func (c *CreateCandidate) transaction() *models.Transaction {
	meta := models.NewMeta()
	meta.Set(models.SourceDataKeys[0], c.record.SourceData)
	meta.Set(models.PostingDateKey, c.record.Date.Format(models.DateLayout))
	return &models.Transaction{
		EntryDate: c.record.Date,
		Flag:      "*",
		Narration: c.narration,
		Meta:      models.NewMeta(),
		Postings: []*models.Posting{
			{Account: c.record.Account, Amount: c.record.Amount, Meta: meta},
			{Account: c.Target, Elided: true, Meta: models.NewMeta()},
		},
	}
}

func (c *CreateCandidate) Preview() []string {
	lines := ledgerfmt.RenderTransaction(c.transaction())
	if !c.session.knownAccount(c.Target) {
		lines = append(lines, openDirective(c.Target))
	}
	return lines
}

// openDirective renders the account-open line appended for a target account
// the journal does not declare yet. The epoch date keeps the directive valid
// for any transaction date.
func openDirective(account string) string {
	return ledgerfmt.RenderOpen(&models.Open{
		EntryDate: models.NewDate(1900, time.January, 1),
		Account:   account,
	})
}

// Apply appends the rendered transaction (and, for an unknown target
// account, an open directive routed by the output rules), re-parses the new
// text in isolation to obtain finalized locations, and registers the tracked
// posting as matched and the target posting as unmatched so a future record
// (e.g. a reimbursement) can match it.
func (c *CreateCandidate) Apply() (*models.Transaction, *models.Posting, error) {
	lines := ledgerfmt.RenderTransaction(c.transaction())
	outPath := c.session.opts.Output
	base, err := c.session.store.AppendLines(outPath, lines, true)
	if err != nil {
		return nil, nil, err
	}

	if !c.session.knownAccount(c.Target) {
		openPath := c.session.filenameForAccount(c.Target)
		if _, err := c.session.store.AppendLines(openPath, []string{openDirective(c.Target)}, false); err != nil {
			return nil, nil, err
		}
		c.session.allAccounts[c.Target] = struct{}{}
	}

	text := strings.Join(lines, "\n") + "\n"
	entries, parseErrs, parseOpts := ledgerfmt.ParseString(text)
	entries, bookErrs := ledgerfmt.Book(entries, parseOpts)
	if len(parseErrs) > 0 || len(bookErrs) > 0 || len(entries) != 1 {
		return nil, nil, &recerror.ParseError{
			Input:  text,
			Reason: "new transaction failed to parse back",
			Err:    firstError(append(parseErrs, bookErrs...)),
		}
	}
	txn, ok := entries[0].(*models.Transaction)
	if !ok || len(txn.Postings) != 2 {
		return nil, nil, &recerror.ParseError{Input: text, Reason: "new transaction failed to parse back"}
	}

	normPath := journal.Normalize(outPath)
	txn.Loc = models.FileLocation{Filename: normPath, Line: txn.Loc.Line - 1 + base}
	for _, posting := range txn.Postings {
		posting.Loc = models.FileLocation{Filename: normPath, Line: posting.Loc.Line - 1 + base}
	}
	c.session.entries = append(c.session.entries, txn)

	c.session.index.AddUnmatched(txn, txn.Postings[1])
	c.session.registerMatched(txn, txn.Postings[0], c.record.SourceData, c.record.Date)

	c.session.advance()
	log.WithFields(logrus.Fields{
		"file":   normPath,
		"line":   txn.Loc.Line,
		"target": c.Target,
	}).Info("Created new transaction")
	return txn, txn.Postings[0], nil
}

// transactionEnd returns the exclusive 1-based end line of the transaction
// starting at line start: lines belong to it while they begin with
// whitespace followed by a non-whitespace character.
func transactionEnd(lines []string, start int) int {
	end := start + 1
	for end <= len(lines) && continuationRe.MatchString(lines[end-1]) {
		end++
	}
	return end
}

func firstError(errs []error) error {
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
