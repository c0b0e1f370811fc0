package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/store/testdb"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := New(testdb.New(t), zerolog.Nop())
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrating test store: %v", err)
	}
	return s
}

func record(externalID, account string, date civil.Date) ledger.Record {
	return ledger.Record{
		ExternalID:  externalID,
		Account:     account,
		Date:        date,
		Description: "test transaction",
		AmountLocal: decimal.RequireFromString("10.00"),
		IsExpense:   true,
	}
}

func TestInsertRecordsSkipsConstraintConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := civil.Date{Year: 2024, Month: 1, Day: 15}

	inserted, err := s.InsertRecords(ctx, []ledger.Record{
		record("a1", "11111111", date),
		record("a2", "11111111", date),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}

	// Same natural keys again, plus one new row: only the new row lands.
	inserted, err = s.InsertRecords(ctx, []ledger.Record{
		record("a1", "11111111", date),
		record("a2", "11111111", date),
		record("a3", "11111111", date),
	})
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}

	// Same external id under a different account is not a conflict.
	inserted, err = s.InsertRecords(ctx, []ledger.Record{record("a1", "22222222", date)})
	if err != nil {
		t.Fatalf("cross-account insert: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
}

func TestExistingExternalIDsScopedToAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := civil.Date{Year: 2024, Month: 2, Day: 1}

	if _, err := s.InsertRecords(ctx, []ledger.Record{
		record("x1", "11111111", date),
		record("x2", "11111111", date),
		record("x3", "22222222", date),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	known, err := s.ExistingExternalIDs(ctx, "11111111")
	if err != nil {
		t.Fatalf("listing ids: %v", err)
	}
	if len(known) != 2 {
		t.Fatalf("got %d ids, want 2", len(known))
	}
	if _, ok := known["x3"]; ok {
		t.Error("id from another account leaked into the known set")
	}
}

func TestMarkInternalTransfers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := civil.Date{Year: 2024, Month: 3, Day: 10}

	if _, err := s.InsertRecords(ctx, []ledger.Record{
		record("shared", "11111111", date),
		record("shared", "22222222", date),
		record("unique", "11111111", date),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	marked, err := s.MarkInternalTransfers(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if marked != 2 {
		t.Fatalf("marked = %d, want 2", marked)
	}

	records, err := s.PendingClassification(ctx, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, r := range records {
		want := r.ExternalID == "shared"
		if r.IsInternalTransfer != want {
			t.Errorf("record %s/%s: is_internal_transfer = %v, want %v", r.ExternalID, r.Account, r.IsInternalTransfer, want)
		}
	}

	// Idempotent: the second sweep flags nothing new.
	marked, err = s.MarkInternalTransfers(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if marked != 0 {
		t.Errorf("second sweep marked = %d, want 0", marked)
	}

	// A new opposite side shows up later: only it gets flagged.
	if _, err := s.InsertRecords(ctx, []ledger.Record{record("unique", "33333333", date)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	marked, err = s.MarkInternalTransfers(ctx)
	if err != nil {
		t.Fatalf("third sweep: %v", err)
	}
	if marked != 2 {
		t.Errorf("third sweep marked = %d, want 2 (both sides of the new pair)", marked)
	}
}

func TestPendingClassificationOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := record("o1", "11111111", civil.Date{Year: 2024, Month: 1, Day: 1})
	newer := record("n1", "11111111", civil.Date{Year: 2024, Month: 6, Day: 1})
	cat := "Other"
	sub := "Uncategorized"
	classified := record("c1", "11111111", civil.Date{Year: 2024, Month: 6, Day: 1})
	classified.Category = &cat
	classified.Subcategory = &sub

	if _, err := s.InsertRecords(ctx, []ledger.Record{older, newer, classified}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := s.PendingClassification(ctx, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d records, want 2", len(pending))
	}
	if pending[0].ExternalID != "n1" || pending[1].ExternalID != "o1" {
		t.Errorf("wrong order: %s, %s", pending[0].ExternalID, pending[1].ExternalID)
	}

	all, err := s.PendingClassification(ctx, true)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d records, want 3", len(all))
	}
	// Same date: id ascending breaks the tie deterministically.
	if all[0].ID > all[1].ID && all[0].Date == all[1].Date {
		t.Error("id tiebreak not ascending")
	}
}

func TestApplyAssignments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := civil.Date{Year: 2024, Month: 4, Day: 1}

	if _, err := s.InsertRecords(ctx, []ledger.Record{
		record("a1", "11111111", date),
		record("a2", "11111111", date),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, err := s.PendingClassification(ctx, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	assignments := map[int64]ledger.Assignment{
		records[0].ID: {Category: "Food & Dining", Subcategory: "Groceries"},
		9999999:       {Category: "Other", Subcategory: "Uncategorized"}, // unknown id contributes nothing
	}

	applied, err := s.ApplyAssignments(ctx, assignments)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}

	all, err := s.PendingClassification(ctx, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, r := range all {
		if r.ID == records[0].ID {
			if r.Category == nil || *r.Category != "Food & Dining" || !r.AutoClassified {
				t.Errorf("assignment not applied: %+v", r)
			}
		}
	}
}

func TestUpdateRecordCategoryClearsAutoFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertRecords(ctx, []ledger.Record{
		record("m1", "11111111", civil.Date{Year: 2024, Month: 5, Day: 5}),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	records, _ := s.PendingClassification(ctx, false)
	id := records[0].ID

	if _, err := s.ApplyAssignments(ctx, map[int64]ledger.Assignment{
		id: {Category: "Other", Subcategory: "Miscellaneous"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := s.UpdateRecordCategory(ctx, id, "Health", "Pharmacy"); err != nil {
		t.Fatalf("manual update: %v", err)
	}

	all, _ := s.PendingClassification(ctx, true)
	got := all[0]
	if got.Category == nil || *got.Category != "Health" || *got.Subcategory != "Pharmacy" {
		t.Errorf("manual edit not applied: %+v", got)
	}
	if got.AutoClassified {
		t.Error("manual edit must clear the auto-classified flag")
	}

	if err := s.UpdateRecordCategory(ctx, 424242, "Health", "Pharmacy"); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for unknown id, got %v", err)
	}
}

func TestClassificationCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := civil.Date{Year: 2024, Month: 7, Day: 1}

	var records []ledger.Record
	for i := 0; i < 5; i++ {
		records = append(records, record(fmt.Sprintf("c%d", i), "11111111", date))
	}
	if _, err := s.InsertRecords(ctx, records); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, _ := s.PendingClassification(ctx, false)
	if _, err := s.ApplyAssignments(ctx, map[int64]ledger.Assignment{
		pending[0].ID: {Category: "Other", Subcategory: "Uncategorized"},
		pending[1].ID: {Category: "Other", Subcategory: "Uncategorized"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	counts, err := s.ClassificationCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 5 || counts.Classified != 2 || counts.Unclassified != 3 {
		t.Errorf("counts = %+v, want 5/2/3", counts)
	}
}

func TestCategoriesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty store: no taxonomy rows yet.
	got, err := s.Categories(ctx)
	if err != nil {
		t.Fatalf("listing empty categories: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no categories, got %d", len(got))
	}

	seed := taxonomy.Static().Categories()
	if err := s.ReplaceCategories(ctx, seed); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err = s.Categories(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != len(seed) {
		t.Fatalf("got %d categories, want %d", len(got), len(seed))
	}
	for i := range seed {
		if got[i].Name != seed[i].Name {
			t.Errorf("position %d: got %q, want %q (order must survive)", i, got[i].Name, seed[i].Name)
		}
		if len(got[i].Subcategories) != len(seed[i].Subcategories) {
			t.Errorf("category %q: subcategory count changed", seed[i].Name)
		}
	}

	// Replace is wholesale.
	if err := s.ReplaceCategories(ctx, seed[:2]); err != nil {
		t.Fatalf("re-seeding: %v", err)
	}
	got, _ = s.Categories(ctx)
	if len(got) != 2 {
		t.Errorf("got %d categories after replace, want 2", len(got))
	}
}
