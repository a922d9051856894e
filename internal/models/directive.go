// Package models provides the data structures shared by the reconciliation
// core: journal directives, postings, amounts and external feed records.
package models

import (
	"time"
)

// DateLayout is the date format used throughout journal text.
const DateLayout = "2006-01-02"

// Metadata keys the core treats as stable identifiers. Other components may
// rely on these names appearing in journal text.
var (
	// SourceDataKeys are the recognized source-identifier metadata keys on
	// postings. Aliases beyond the first tolerate duplicate external rows
	// resolving to the same posting, and all aliases count interchangeably.
	SourceDataKeys = []string{"source_data", "source_data1", "source_data2"}

	// PostingDateKey is the posting-date metadata key. When absent the
	// posting inherits the parent transaction's date.
	PostingDateKey = "date"

	// SourceIDKey is the Open-directive metadata key that binds an account
	// to an external data source.
	SourceIDKey = "source_id"
)

// FileLocation identifies where a directive or posting lives in journal text.
// Line numbers are 1-based and must be kept in step with every text edit.
type FileLocation struct {
	Filename string
	Line     int
}

// Directive is the closed set of journal entry variants.
type Directive interface {
	Location() *FileLocation
	Date() time.Time
	directive()
}

// Meta is an ordered string-to-string mapping preserving the order in which
// metadata lines appear in journal text.
type Meta struct {
	keys   []string
	values map[string]string
}

// NewMeta returns an empty metadata mapping.
func NewMeta() *Meta {
	return &Meta{values: make(map[string]string)}
}

// Get returns the value for key and whether it is present.
func (m *Meta) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Meta) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores a value, appending the key to the order on first use.
func (m *Meta) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Keys returns the keys in insertion order.
func (m *Meta) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of entries.
func (m *Meta) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Open declares an account. A source_id metadata entry marks the account as
// tracked against an external data source.
type Open struct {
	EntryDate time.Time
	Account   string
	Meta      *Meta
	Loc       FileLocation
}

func (o *Open) Location() *FileLocation { return &o.Loc }
func (o *Open) Date() time.Time         { return o.EntryDate }
func (o *Open) directive()              {}

// SourceID returns the external source identifier for a tracked account.
func (o *Open) SourceID() (string, bool) {
	return o.Meta.Get(SourceIDKey)
}

// Posting is one leg of a transaction. Amount may be elided in journal text,
// in which case booking fills it in.
type Posting struct {
	Account string
	Amount  Amount
	Elided  bool
	Meta    *Meta
	Loc     FileLocation
}

// ExplicitDate returns the posting-date metadata value, if present and valid.
func (p *Posting) ExplicitDate() (time.Time, bool) {
	raw, ok := p.Meta.Get(PostingDateKey)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// SourceDataValues returns the value of every recognized source-identifier
// key present on the posting, in alias order. A posting carries more than one
// alias when duplicate downloaded rows resolve to the same ledger line.
func (p *Posting) SourceDataValues() []string {
	var values []string
	for _, key := range SourceDataKeys {
		if v, ok := p.Meta.Get(key); ok {
			values = append(values, v)
		}
	}
	return values
}

// Transaction is a dated entry with two or more postings.
type Transaction struct {
	EntryDate time.Time
	Flag      string
	Payee     string
	Narration string
	Postings  []*Posting
	Meta      *Meta
	Loc       FileLocation
}

func (t *Transaction) Location() *FileLocation { return &t.Loc }
func (t *Transaction) Date() time.Time         { return t.EntryDate }
func (t *Transaction) directive()              {}

// PostingDate returns the posting's effective date: its explicit date
// metadata when present, otherwise the transaction date.
func (t *Transaction) PostingDate(p *Posting) time.Time {
	if d, ok := p.ExplicitDate(); ok {
		return d
	}
	return t.EntryDate
}

// Balance asserts an account balance at a date.
type Balance struct {
	EntryDate time.Time
	Account   string
	Amount    Amount
	Loc       FileLocation
}

func (b *Balance) Location() *FileLocation { return &b.Loc }
func (b *Balance) Date() time.Time         { return b.EntryDate }
func (b *Balance) directive()              {}

// Price declares an exchange rate between commodities.
type Price struct {
	EntryDate time.Time
	Commodity string
	Amount    Amount
	Loc       FileLocation
}

func (p *Price) Location() *FileLocation { return &p.Loc }
func (p *Price) Date() time.Time         { return p.EntryDate }
func (p *Price) directive()              {}

// NewDate builds the canonical midnight-UTC time value used for all journal
// and feed dates, so dates compare and hash consistently.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
