// Package ingest turns raw bank-statement exports into canonical ledger
// records: parsing, deduplication against the store, insertion and the
// internal-transfer sweep.
package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
)

// Column layout of the TBC statement export. The export is 26 columns wide;
// anything narrower is a summary or decoration line, not a transaction.
const (
	colDate                = 0
	colDescription         = 1
	colNote                = 2
	colPaidOut             = 3
	colPaidOutEquivalent   = 4
	colPaidIn              = 5
	colPaidInEquivalent    = 6
	colBalanceEquivalent   = 8
	colKind                = 9
	colDocumentNumber      = 11
	colCounterpartyAccount = 12
	colCounterpartyName    = 13
	colExternalID          = 25

	minColumns = 26
)

// headerRows is the number of leading rows that are always column headers.
const headerRows = 2

const dateLayout = "02/01/2006"

// generatedIDPrefix distinguishes derived external ids from source-supplied
// ones.
const generatedIDPrefix = "gen_"

// generatedIDHexLen is the length of the hex digest prefix kept in a
// generated id. Fixed: changing it would orphan every previously generated
// id.
const generatedIDHexLen = 16

var (
	accountFromName = regexp.MustCompile(`account_statement_(\d+)_`)
	accountDigitRun = regexp.MustCompile(`\d{8}`)

	// Raw and equivalent amounts within one tetri of each other mean the
	// account currency is GEL.
	foreignThreshold = decimal.RequireFromString("0.01")
)

// Statement is the result of parsing one statement file.
type Statement struct {
	// Account is the account number resolved from the filename.
	Account string

	// Records are the candidate ledger records in file order.
	Records []ledger.Record

	// TotalRows counts every data row in the file, including rows that were
	// silently dropped; the difference between TotalRows and accepted plus
	// duplicates is the number of skipped rows.
	TotalRows int
}

// ParseStatement parses raw statement bytes into candidate records. It fails
// only when the file as a whole is unusable (wrapping
// ledger.ErrMalformedInput); individual bad rows are dropped silently.
func ParseStatement(data []byte, filename string) (*Statement, error) {
	account := ExtractAccount(filename)

	reader := csv.NewReader(strings.NewReader(decodeStatement(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid csv: %v", ledger.ErrMalformedInput, err)
	}

	if len(rows) < headerRows+1 {
		return nil, fmt.Errorf("%w: file must contain header rows and at least one transaction", ledger.ErrMalformedInput)
	}

	stmt := &Statement{
		Account:   account,
		TotalRows: len(rows) - headerRows,
	}

	for _, row := range rows[headerRows:] {
		record, ok := buildRecord(row, account)
		if !ok {
			continue
		}
		stmt.Records = append(stmt.Records, record)
	}

	return stmt, nil
}

// ExtractAccount resolves the account number from a statement filename. The
// export convention embeds it after a fixed prefix; failing that, the first
// 8-digit run anywhere in the name is taken; failing that, "unknown". Account
// inference never fails an upload.
func ExtractAccount(filename string) string {
	if m := accountFromName.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	if m := accountDigitRun.FindString(filename); m != "" {
		return m
	}
	return "unknown"
}

// decodeStatement strips an optional BOM and repairs invalid UTF-8 lossily.
// An encoding problem must never block ingestion.
func decodeStatement(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// buildRecord maps one data row onto a candidate record. ok is false for
// rows that are not transactions: blank, structurally short, or without a
// parseable date.
func buildRecord(row []string, account string) (ledger.Record, bool) {
	if len(row) < minColumns || rowIsBlank(row) {
		return ledger.Record{}, false
	}

	// The date is the row's validity gate.
	date, ok := parseDate(row[colDate])
	if !ok {
		return ledger.Record{}, false
	}

	paidOut := parseAmount(row[colPaidOut])
	paidOutEquiv := parseAmount(row[colPaidOutEquivalent])
	paidIn := parseAmount(row[colPaidIn])
	paidInEquiv := parseAmount(row[colPaidInEquivalent])

	isExpense := paidOut != nil && paidOut.IsPositive()

	record := ledger.Record{
		Account:             account,
		Date:                date,
		Description:         strings.TrimSpace(row[colDescription]),
		Note:                strings.TrimSpace(row[colNote]),
		AmountLocal:         localAmount(isExpense, paidOut, paidOutEquiv, paidIn, paidInEquiv),
		AmountForeign:       foreignAmount(paidOut, paidOutEquiv, paidIn, paidInEquiv),
		IsExpense:           isExpense,
		BalanceAfter:        parseAmount(row[colBalanceEquivalent]),
		Kind:                strings.TrimSpace(row[colKind]),
		CounterpartyName:    strings.TrimSpace(row[colCounterpartyName]),
		CounterpartyAccount: strings.TrimSpace(row[colCounterpartyAccount]),
		DocumentNumber:      strings.TrimSpace(row[colDocumentNumber]),
	}

	record.ExternalID = strings.TrimSpace(row[colExternalID])
	if record.ExternalID == "" {
		record.ExternalID = GenerateExternalID(
			date,
			record.Description,
			record.Note,
			paidOutEquiv,
			paidInEquiv,
			account,
			record.DocumentNumber,
			record.CounterpartyAccount,
		)
	}

	return record, true
}

// GenerateExternalID derives a stable identifier for a statement row that
// carries none. The inputs are normalized before hashing so unrelated
// whitespace or casing differences cannot change the id, and the recipe must
// stay fixed: re-uploading an identical file has to reproduce identical ids.
func GenerateExternalID(date civil.Date, description, note string, paidOutEquiv, paidInEquiv *decimal.Decimal, account, documentNumber, counterpartyAccount string) string {
	amount := "0"
	if paidOutEquiv != nil {
		amount = paidOutEquiv.String()
	} else if paidInEquiv != nil {
		amount = paidInEquiv.String()
	}

	parts := []string{
		date.String(),
		strings.ToLower(strings.TrimSpace(description)),
		strings.ToLower(strings.TrimSpace(note)),
		amount,
		account,
		strings.TrimSpace(documentNumber),
		strings.TrimSpace(counterpartyAccount),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return generatedIDPrefix + hex.EncodeToString(sum[:])[:generatedIDHexLen]
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDate(cell string) (civil.Date, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(cell))
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

// parseAmount reads a statement money cell. The export uses a comma decimal
// separator; a cell that still fails to parse is treated as absent, never as
// an error.
func parseAmount(cell string) *decimal.Decimal {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// localAmount picks the GEL amount for the active side of the transaction,
// preferring the GEL-equivalent column over the raw one and defaulting to
// zero when both are absent.
func localAmount(isExpense bool, paidOut, paidOutEquiv, paidIn, paidInEquiv *decimal.Decimal) decimal.Decimal {
	equiv, raw := paidInEquiv, paidIn
	if isExpense {
		equiv, raw = paidOutEquiv, paidOut
	}
	if equiv != nil {
		return *equiv
	}
	if raw != nil {
		return *raw
	}
	return decimal.Zero
}

// foreignAmount detects a non-GEL source account by comparing each side's raw
// amount with its GEL equivalent. A gap above one tetri means the raw side is
// in the account currency and is carried as the foreign amount.
func foreignAmount(paidOut, paidOutEquiv, paidIn, paidInEquiv *decimal.Decimal) *decimal.Decimal {
	if paidOut != nil && paidOutEquiv != nil && paidOut.Sub(*paidOutEquiv).Abs().GreaterThan(foreignThreshold) {
		v := *paidOut
		return &v
	}
	if paidIn != nil && paidInEquiv != nil && paidIn.Sub(*paidInEquiv).Abs().GreaterThan(foreignThreshold) {
		v := *paidIn
		return &v
	}
	return nil
}
