package feed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"fjacquet/ledger-reconcile/internal/classify"
	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/xmlpath.v2"
)

var (
	stmtPath       = xmlpath.MustCompile("//BkToCstmrStmt/Stmt")
	ibanPath       = xmlpath.MustCompile("Acct/Id/IBAN")
	entryPath      = xmlpath.MustCompile("Ntry")
	entryAmtPath   = xmlpath.MustCompile("Amt")
	entryCcyPath   = xmlpath.MustCompile("Amt/@Ccy")
	entrySignPath  = xmlpath.MustCompile("CdtDbtInd")
	entryDatePath  = xmlpath.MustCompile("BookgDt/Dt")
	remittancePath = xmlpath.MustCompile("NtryDtls/TxDtls/RmtInf/Ustrd")
	additionalPath = xmlpath.MustCompile("AddtlNtryInf")
)

// LoadCAMT parses a CAMT.053 XML statement and returns the entries of every
// statement whose account IBAN is mapped in opts.Accounts.
func LoadCAMT(path string, opts Options) ([]models.ExternalRecord, error) {
	log.WithField("file", path).Info("Loading CAMT.053 feed")

	f, err := os.Open(path)
	if err != nil {
		return nil, &recerror.ConfigurationError{Reason: "cannot open feed file", Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close feed file")
		}
	}()

	root, err := xmlpath.Parse(f)
	if err != nil {
		return nil, &recerror.ConfigurationError{
			Reason: fmt.Sprintf("malformed CAMT.053 feed %s", path),
			Err:    err,
		}
	}
	if !stmtPath.Exists(root) {
		return nil, &recerror.ConfigurationError{
			Reason: fmt.Sprintf("%s is not a CAMT.053 document (no statements)", path),
		}
	}

	var records []models.ExternalRecord
	stmts := stmtPath.Iter(root)
	for stmts.Next() {
		stmt := stmts.Node()
		iban, _ := ibanPath.String(stmt)
		account, ok := opts.Accounts[iban]
		if !ok {
			log.WithField("iban", iban).Debug("Skipping statement for unmapped IBAN")
			continue
		}

		entries := entryPath.Iter(stmt)
		for entries.Next() {
			record, err := convertEntry(entries.Node(), account)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			records = append(records, record)
		}
		log.WithFields(logrus.Fields{"iban": iban, "account": account}).Debug("Loaded statement")
	}

	log.WithFields(logrus.Fields{"file": path, "records": len(records)}).Info("Loaded CAMT.053 feed")
	return records, nil
}

func convertEntry(entry *xmlpath.Node, account string) (models.ExternalRecord, error) {
	amtText, ok := entryAmtPath.String(entry)
	if !ok {
		return models.ExternalRecord{}, &recerror.ParseError{Input: "Ntry", Reason: "entry has no amount"}
	}
	number, err := decimal.NewFromString(amtText)
	if err != nil {
		return models.ExternalRecord{}, &recerror.ParseError{Input: amtText, Reason: "invalid amount", Err: err}
	}
	currency, ok := entryCcyPath.String(entry)
	if !ok {
		return models.ExternalRecord{}, &recerror.ParseError{Input: amtText, Reason: "entry amount has no currency"}
	}
	amount := models.Amount{Number: number, Currency: currency}

	if sign, _ := entrySignPath.String(entry); sign == "DBIT" {
		amount = amount.Neg()
	}

	dateText, ok := entryDatePath.String(entry)
	if !ok {
		return models.ExternalRecord{}, &recerror.ParseError{Input: "Ntry", Reason: "entry has no booking date"}
	}
	date, err := time.ParseInLocation(models.DateLayout, dateText, time.UTC)
	if err != nil {
		return models.ExternalRecord{}, &recerror.ParseError{Input: dateText, Reason: "invalid booking date", Err: err}
	}

	description, ok := remittancePath.String(entry)
	if !ok || strings.TrimSpace(description) == "" {
		description, _ = additionalPath.String(entry)
	}

	return models.ExternalRecord{
		Account:    account,
		Date:       date,
		Amount:     amount,
		SourceData: classify.SourceData(strings.TrimSpace(description)),
	}, nil
}
