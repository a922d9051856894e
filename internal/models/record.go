package models

import (
	"fmt"
	"time"
)

// ExternalRecord is one normalized row from an external data feed, already
// mapped onto a journal account name. Immutable once loaded. Duplicate rows
// are possible, so records are counted as a multiset keyed by RecordKey.
type ExternalRecord struct {
	Account    string
	Date       time.Time
	Amount     Amount
	SourceData string
}

// RecordKey is the comparable identity of an external record. The amount is
// canonicalized so textual variations of the same exact value collide.
type RecordKey struct {
	Account    string
	Date       time.Time
	Amount     string
	SourceData string
}

// Key returns the multiset key for this record.
func (r ExternalRecord) Key() RecordKey {
	return RecordKey{
		Account:    r.Account,
		Date:       r.Date,
		Amount:     r.Amount.Key(),
		SourceData: r.SourceData,
	}
}

func (r ExternalRecord) String() string {
	return fmt.Sprintf("[%s] (%s) %s %s",
		r.Account, r.Date.Format(DateLayout), r.SourceData, r.Amount)
}
