package store

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// transactionRow is the persistence shape of ledger.Record. The composite
// unique index on (external_id, account) is the dedup backstop: concurrent
// uploads of the same statement race on it, never on application state.
type transactionRow struct {
	ID                  int64            `gorm:"primaryKey"`
	ExternalID          string           `gorm:"size:50;not null;uniqueIndex:uix_transactions_external_account"`
	Account             string           `gorm:"size:20;not null;uniqueIndex:uix_transactions_external_account"`
	Date                time.Time        `gorm:"type:date;not null;index:idx_transactions_date"`
	Description         string           `gorm:"size:500"`
	Note                string           `gorm:"size:1000"`
	AmountLocal         decimal.Decimal  `gorm:"type:numeric(15,2);not null"`
	AmountForeign       *decimal.Decimal `gorm:"type:numeric(15,2)"`
	IsExpense           bool             `gorm:"not null"`
	IsInternalTransfer  bool             `gorm:"not null;default:false;index:idx_transactions_internal"`
	BalanceAfter        *decimal.Decimal `gorm:"type:numeric(15,2)"`
	Kind                string           `gorm:"size:100"`
	CounterpartyName    string           `gorm:"size:255"`
	CounterpartyAccount string           `gorm:"size:100"`
	DocumentNumber      string           `gorm:"size:50"`
	Category            *string          `gorm:"size:50;index:idx_transactions_category"`
	Subcategory         *string          `gorm:"size:50"`
	AutoClassified      bool             `gorm:"not null;default:false"`
	CreatedAt           time.Time
}

func (transactionRow) TableName() string { return "transactions" }

func rowFromRecord(r ledger.Record) transactionRow {
	return transactionRow{
		ID:                  r.ID,
		ExternalID:          r.ExternalID,
		Account:             r.Account,
		Date:                r.Date.In(time.UTC),
		Description:         r.Description,
		Note:                r.Note,
		AmountLocal:         r.AmountLocal,
		AmountForeign:       r.AmountForeign,
		IsExpense:           r.IsExpense,
		IsInternalTransfer:  r.IsInternalTransfer,
		BalanceAfter:        r.BalanceAfter,
		Kind:                r.Kind,
		CounterpartyName:    r.CounterpartyName,
		CounterpartyAccount: r.CounterpartyAccount,
		DocumentNumber:      r.DocumentNumber,
		Category:            r.Category,
		Subcategory:         r.Subcategory,
		AutoClassified:      r.AutoClassified,
	}
}

func recordFromRow(row transactionRow) ledger.Record {
	return ledger.Record{
		ID:                  row.ID,
		ExternalID:          row.ExternalID,
		Account:             row.Account,
		Date:                civil.DateOf(row.Date),
		Description:         row.Description,
		Note:                row.Note,
		AmountLocal:         row.AmountLocal,
		AmountForeign:       row.AmountForeign,
		IsExpense:           row.IsExpense,
		IsInternalTransfer:  row.IsInternalTransfer,
		BalanceAfter:        row.BalanceAfter,
		Kind:                row.Kind,
		CounterpartyName:    row.CounterpartyName,
		CounterpartyAccount: row.CounterpartyAccount,
		DocumentNumber:      row.DocumentNumber,
		Category:            row.Category,
		Subcategory:         row.Subcategory,
		AutoClassified:      row.AutoClassified,
		CreatedAt:           row.CreatedAt,
	}
}

// categoryRow stores one taxonomy entry. Subcategories keep their order as a
// JSON array; Position preserves the taxonomy order across reads.
type categoryRow struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"size:50;not null;unique"`
	Subcategories string `gorm:"size:1000;not null"`
	Position      int    `gorm:"not null"`
}

func (categoryRow) TableName() string { return "categories" }

func categoryRowFrom(c taxonomy.Category, position int) (categoryRow, error) {
	subs, err := json.Marshal(c.Subcategories)
	if err != nil {
		return categoryRow{}, fmt.Errorf("encoding subcategories for %q: %w", c.Name, err)
	}
	return categoryRow{Name: c.Name, Subcategories: string(subs), Position: position}, nil
}

func categoryFromRow(row categoryRow) (taxonomy.Category, error) {
	var subs []string
	if err := json.Unmarshal([]byte(row.Subcategories), &subs); err != nil {
		return taxonomy.Category{}, fmt.Errorf("decoding subcategories for %q: %w", row.Name, err)
	}
	return taxonomy.Category{Name: row.Name, Subcategories: subs}, nil
}
