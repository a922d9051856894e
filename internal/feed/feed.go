// Package feed loads external transaction records from bank export files.
// Two formats are supported: Mint-style CSV exports and CAMT.053 XML
// statements. Records are returned in ascending date order so downstream
// processing is deterministic.
package feed

import (
	"path/filepath"
	"sort"
	"strings"

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

// Options controls how feed files are interpreted.
type Options struct {
	// Accounts maps the source identifier found in the feed (the "Account
	// Name" column for CSV, the IBAN for CAMT) to a journal account name.
	// Records for unmapped identifiers are skipped.
	Accounts map[string]string

	// AssumedCurrency is applied to CSV amounts that carry no currency of
	// their own.
	AssumedCurrency string
}

// Load reads a feed file, dispatching on the file extension.
func Load(path string, opts Options) ([]models.ExternalRecord, error) {
	var records []models.ExternalRecord
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = LoadCSV(path, opts)
	case ".xml":
		records, err = LoadCAMT(path, opts)
	default:
		return nil, &recerror.ConfigurationError{
			Reason: "unsupported feed file format: " + path,
		}
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}
