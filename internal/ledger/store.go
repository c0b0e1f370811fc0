package ledger

import (
	"context"

	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// Store is the persistence contract for the ledger. The GORM implementation
// lives in internal/store; tests substitute func-field mocks.
type Store interface {
	// ExistingExternalIDs returns the set of external ids already stored for
	// an account. Read once per upload by the dedup filter.
	ExistingExternalIDs(ctx context.Context, account string) (map[string]struct{}, error)

	// InsertRecords inserts candidate records, silently skipping any row
	// that collides with the (external_id, account) unique constraint, and
	// returns the number actually inserted. A concurrent upload of the same
	// file therefore produces duplicates, not errors.
	InsertRecords(ctx context.Context, records []Record) (int64, error)

	// PendingClassification returns the classification working set: records
	// with no category, or every record when includeClassified is true.
	// Ordered by date descending, id ascending, so batch composition is
	// deterministic.
	PendingClassification(ctx context.Context, includeClassified bool) ([]Record, error)

	// ApplyAssignments sets category/subcategory on each listed record and
	// flags it auto-classified, inside a single transaction. Returns the
	// number of records updated.
	ApplyAssignments(ctx context.Context, assignments map[int64]Assignment) (int64, error)

	// UpdateRecordCategory is the manual-edit path: it sets the pair and
	// always clears the auto-classified flag. Returns ErrRecordNotFound for
	// an unknown id.
	UpdateRecordCategory(ctx context.Context, id int64, category, subcategory string) error

	// MarkInternalTransfers flags every record whose external id occurs
	// under two or more distinct accounts. Idempotent; returns only the
	// count of newly flagged rows.
	MarkInternalTransfers(ctx context.Context) (int64, error)

	// ClassificationCounts reports total/classified/unclassified record
	// counts.
	ClassificationCounts(ctx context.Context) (Counts, error)

	// Categories returns the stored taxonomy in position order. An empty
	// result makes the taxonomy provider fall back to the static set.
	Categories(ctx context.Context) ([]taxonomy.Category, error)

	// ReplaceCategories replaces the stored taxonomy wholesale. Callers are
	// responsible for invalidating any taxonomy cache afterwards.
	ReplaceCategories(ctx context.Context, categories []taxonomy.Category) error
}
