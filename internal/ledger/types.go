package ledger

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Record is one canonical ledger transaction. It is the domain struct shared
// by ingestion, classification and the HTTP surface; the store layer maps it
// onto its own row type.
type Record struct {
	// ID is the store-assigned surrogate key, immutable once created.
	ID int64 `json:"id"`

	// ExternalID is the source-supplied transaction identifier, or a
	// deterministically generated "gen_"-prefixed hash when the statement
	// row carried none. Together with Account it forms the natural key.
	ExternalID string `json:"external_id"`

	// Account is the statement account number, derived from the filename.
	Account string `json:"account"`

	Date        civil.Date `json:"date"`
	Description string     `json:"description,omitempty"`
	Note        string     `json:"note,omitempty"`

	// AmountLocal is the magnitude in GEL, never negative. Direction is
	// carried by IsExpense.
	AmountLocal decimal.Decimal `json:"amount_local"`

	// AmountForeign is the raw-side amount, set only when the source account
	// is not a GEL account.
	AmountForeign *decimal.Decimal `json:"amount_foreign,omitempty"`

	IsExpense bool `json:"is_expense"`

	// IsInternalTransfer is set only by the transfer sweep, never at parse
	// time.
	IsInternalTransfer bool `json:"is_internal_transfer"`

	BalanceAfter *decimal.Decimal `json:"balance_after,omitempty"`

	Kind                string `json:"kind,omitempty"`
	CounterpartyName    string `json:"counterparty_name,omitempty"`
	CounterpartyAccount string `json:"counterparty_account,omitempty"`
	DocumentNumber      string `json:"document_number,omitempty"`

	// Category and Subcategory are nil while the record is unclassified;
	// they are always both nil or both set.
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`

	// AutoClassified is true only while the current category pair came from
	// the classification client and was not manually overridden since.
	AutoClassified bool `json:"auto_classified"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Assignment is a category/subcategory pair produced by the classification
// client for one record.
type Assignment struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// Counts summarizes classification coverage of the ledger.
type Counts struct {
	Total        int64 `json:"total"`
	Classified   int64 `json:"categorized"`
	Unclassified int64 `json:"uncategorized"`
}
