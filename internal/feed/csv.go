package feed

import (
	"fmt"
	"os"
	"time"

	"fjacquet/ledger-reconcile/internal/amountparse"
	"fjacquet/ledger-reconcile/internal/classify"
	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

// csvDateLayout is the date format used by Mint-style exports.
const csvDateLayout = "01/02/2006"

// mintRow represents a single row in a Mint-style CSV export.
// It uses struct tags for gocsv unmarshaling.
type mintRow struct {
	Date                string `csv:"Date"`
	Description         string `csv:"Description"`
	OriginalDescription string `csv:"Original Description"`
	Amount              string `csv:"Amount"`
	TransactionType     string `csv:"Transaction Type"`
	AccountName         string `csv:"Account Name"`
}

// LoadCSV parses a Mint-style CSV export and returns the records whose
// source account is mapped in opts.Accounts. Amounts are unsigned in the
// file; the Transaction Type column carries the sign.
func LoadCSV(path string, opts Options) ([]models.ExternalRecord, error) {
	log.WithField("file", path).Info("Loading CSV feed")

	file, err := os.Open(path)
	if err != nil {
		return nil, &recerror.ConfigurationError{Reason: "cannot open feed file", Err: err}
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close feed file")
		}
	}()

	var rows []*mintRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, &recerror.ConfigurationError{
			Reason: fmt.Sprintf("malformed CSV feed %s", path),
			Err:    err,
		}
	}

	var records []models.ExternalRecord
	skipped := 0
	for i, row := range rows {
		if row.Date == "" {
			continue
		}
		account, ok := opts.Accounts[row.AccountName]
		if !ok {
			skipped++
			log.WithField("account", row.AccountName).Debug("Skipping row for unmapped account")
			continue
		}
		record, err := convertMintRow(row, account, opts.AssumedCurrency)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+2, err)
		}
		records = append(records, record)
	}

	log.WithFields(logrus.Fields{
		"file":    path,
		"records": len(records),
		"skipped": skipped,
	}).Info("Loaded CSV feed")
	return records, nil
}

func convertMintRow(row *mintRow, account, assumedCurrency string) (models.ExternalRecord, error) {
	date, err := time.ParseInLocation(csvDateLayout, row.Date, time.UTC)
	if err != nil {
		return models.ExternalRecord{}, &recerror.ParseError{Input: row.Date, Reason: "invalid date", Err: err}
	}

	amount, err := amountparse.Parse(row.Amount, assumedCurrency)
	if err != nil {
		return models.ExternalRecord{}, err
	}
	switch row.TransactionType {
	case "debit":
		amount = amount.Neg()
	case "credit":
		// amounts are stored unsigned, credits keep the parsed sign
	default:
		return models.ExternalRecord{}, &recerror.ParseError{
			Input:  row.TransactionType,
			Reason: "unknown transaction type",
		}
	}

	return models.ExternalRecord{
		Account:    account,
		Date:       date,
		Amount:     amount,
		SourceData: classify.SourceData(row.OriginalDescription),
	}, nil
}
