package feed

import (
	"os"
	"path/filepath"
	"testing"

	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Date,Description,Original Description,Amount,Transaction Type,Account Name
01/15/2020,Starbucks,STARBUCKS STORE 123,5.00,debit,My Checking
01/10/2020,Paycheck,ACME CORP PAYROLL,1234.56,credit,My Checking
01/12/2020,Ignored,SOMETHING ELSE,9.99,debit,Other Account
`

const sampleCAMT = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.04">
  <BkToCstmrStmt>
    <Stmt>
      <Acct><Id><IBAN>CH9300762011623852957</IBAN></Id></Acct>
      <Ntry>
        <Amt Ccy="CHF">25.50</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <BookgDt><Dt>2020-01-15</Dt></BookgDt>
        <NtryDtls><TxDtls><RmtInf><Ustrd>PMT CARTE COOP</Ustrd></RmtInf></TxDtls></NtryDtls>
      </Ntry>
      <Ntry>
        <Amt Ccy="CHF">1000.00</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <BookgDt><Dt>2020-01-10</Dt></BookgDt>
        <AddtlNtryInf>SALARY PAYMENT</AddtlNtryInf>
      </Ntry>
    </Stmt>
    <Stmt>
      <Acct><Id><IBAN>CH0000000000000000000</IBAN></Id></Acct>
      <Ntry>
        <Amt Ccy="CHF">1.00</Amt>
        <CdtDbtInd>DBIT</CdtDbtInd>
        <BookgDt><Dt>2020-01-11</Dt></BookgDt>
        <AddtlNtryInf>UNMAPPED</AddtlNtryInf>
      </Ntry>
    </Stmt>
  </BkToCstmrStmt>
</Document>
`

func writeFeedFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeFeedFile(t, "mint.csv", sampleCSV)
	opts := Options{
		Accounts:        map[string]string{"My Checking": "Assets:Checking"},
		AssumedCurrency: "USD",
	}

	records, err := Load(path, opts)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Sorted ascending by date: the paycheck comes first.
	assert.Equal(t, "Assets:Checking", records[0].Account)
	assert.Equal(t, models.NewDate(2020, 1, 10), records[0].Date)
	assert.Equal(t, "1234.56 USD", records[0].Amount.String())
	assert.Equal(t, "csv-desc:ACME CORP PAYROLL", records[0].SourceData)

	assert.Equal(t, models.NewDate(2020, 1, 15), records[1].Date)
	assert.Equal(t, "-5.00 USD", records[1].Amount.String())
	assert.Equal(t, "csv-desc:STARBUCKS STORE 123", records[1].SourceData)
}

func TestLoadCSVBadRow(t *testing.T) {
	path := writeFeedFile(t, "mint.csv",
		"Date,Description,Original Description,Amount,Transaction Type,Account Name\n"+
			"01/15/2020,X,X,5.00,transfer,My Checking\n")
	opts := Options{Accounts: map[string]string{"My Checking": "Assets:Checking"}, AssumedCurrency: "USD"}

	_, err := Load(path, opts)
	var parseErr *recerror.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), "row 2")
}

func TestLoadCAMT(t *testing.T) {
	path := writeFeedFile(t, "statement.xml", sampleCAMT)
	opts := Options{Accounts: map[string]string{"CH9300762011623852957": "Assets:Checking"}}

	records, err := Load(path, opts)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.NewDate(2020, 1, 10), records[0].Date)
	assert.Equal(t, "1000.00 CHF", records[0].Amount.String())
	assert.Equal(t, "csv-desc:SALARY PAYMENT", records[0].SourceData)

	assert.Equal(t, models.NewDate(2020, 1, 15), records[1].Date)
	assert.Equal(t, "-25.50 CHF", records[1].Amount.String())
	assert.Equal(t, "csv-desc:PMT CARTE COOP", records[1].SourceData)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFeedFile(t, "feed.ofx", "junk")
	_, err := Load(path, Options{})
	var cfgErr *recerror.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadCAMTRejectsNonStatementXML(t *testing.T) {
	path := writeFeedFile(t, "other.xml", "<Document><Other/></Document>")
	_, err := Load(path, Options{})
	var cfgErr *recerror.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "no statements")
}
