package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

var _ ledger.Store = (*Store)(nil)

// ExistingExternalIDs implements ledger.Store.
func (s *Store) ExistingExternalIDs(ctx context.Context, account string) (map[string]struct{}, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&transactionRow{}).
		Where("account = ?", account).
		Pluck("external_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("store: listing external ids for account %s: %w", account, err)
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// InsertRecords implements ledger.Store. Rows colliding with the
// (external_id, account) constraint are skipped, not failed: a concurrent
// upload of the same statement produces duplicates.
func (s *Store) InsertRecords(ctx context.Context, records []ledger.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]transactionRow, len(records))
	for i, r := range records {
		rows[i] = rowFromRecord(r)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "account"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("store: inserting records: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// PendingClassification implements ledger.Store. Date descending with id
// ascending as the tiebreak keeps batch composition deterministic.
func (s *Store) PendingClassification(ctx context.Context, includeClassified bool) ([]ledger.Record, error) {
	q := s.db.WithContext(ctx).Model(&transactionRow{})
	if !includeClassified {
		q = q.Where("category IS NULL")
	}

	var rows []transactionRow
	if err := q.Order("date DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: fetching classification working set: %w", err)
	}

	records := make([]ledger.Record, len(rows))
	for i, row := range rows {
		records[i] = recordFromRow(row)
	}
	return records, nil
}

// ApplyAssignments implements ledger.Store. All assignments commit in one
// transaction; a failure rolls every one of them back.
func (s *Store) ApplyAssignments(ctx context.Context, assignments map[int64]ledger.Assignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	var applied int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, a := range assignments {
			res := tx.Model(&transactionRow{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"category":        a.Category,
					"subcategory":     a.Subcategory,
					"auto_classified": true,
				})
			if res.Error != nil {
				return res.Error
			}
			applied += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: applying assignments: %w", err)
	}

	return applied, nil
}

// UpdateRecordCategory implements ledger.Store. The manual-edit path: the
// auto-classified flag always comes off.
func (s *Store) UpdateRecordCategory(ctx context.Context, id int64, category, subcategory string) error {
	res := s.db.WithContext(ctx).
		Model(&transactionRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"category":        category,
			"subcategory":     subcategory,
			"auto_classified": false,
		})
	if res.Error != nil {
		return fmt.Errorf("store: updating record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrRecordNotFound
	}
	return nil
}

// MarkInternalTransfers implements ledger.Store: one set-based statement
// flagging every row whose external id occurs under more than one account.
// Idempotent; only newly flagged rows count.
func (s *Store) MarkInternalTransfers(ctx context.Context) (int64, error) {
	shared := s.db.Model(&transactionRow{}).
		Select("external_id").
		Group("external_id").
		Having("COUNT(DISTINCT account) > 1")

	res := s.db.WithContext(ctx).
		Model(&transactionRow{}).
		Where("external_id IN (?)", shared).
		Where("is_internal_transfer = ?", false).
		Update("is_internal_transfer", true)
	if res.Error != nil {
		return 0, fmt.Errorf("store: marking internal transfers: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// ClassificationCounts implements ledger.Store.
func (s *Store) ClassificationCounts(ctx context.Context) (ledger.Counts, error) {
	var counts ledger.Counts

	err := s.db.WithContext(ctx).Model(&transactionRow{}).Count(&counts.Total).Error
	if err != nil {
		return ledger.Counts{}, fmt.Errorf("store: counting records: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&transactionRow{}).
		Where("category IS NOT NULL").
		Count(&counts.Classified).Error
	if err != nil {
		return ledger.Counts{}, fmt.Errorf("store: counting classified records: %w", err)
	}

	counts.Unclassified = counts.Total - counts.Classified
	return counts, nil
}

// Categories implements ledger.Store and the taxonomy.Lister side of the
// provider chain.
func (s *Store) Categories(ctx context.Context) ([]taxonomy.Category, error) {
	var rows []categoryRow
	err := s.db.WithContext(ctx).Order("position ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: listing categories: %w", err)
	}

	categories := make([]taxonomy.Category, 0, len(rows))
	for _, row := range rows {
		c, err := categoryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

// ReplaceCategories implements ledger.Store. Wholesale swap in one
// transaction; the caller invalidates the taxonomy cache afterwards.
func (s *Store) ReplaceCategories(ctx context.Context, categories []taxonomy.Category) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&categoryRow{}).Error; err != nil {
			return err
		}
		for i, c := range categories {
			row, err := categoryRowFrom(c, i)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: replacing categories: %w", err)
	}
	return nil
}
