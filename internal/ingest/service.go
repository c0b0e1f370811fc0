package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
)

// Archiver stores a copy of the raw statement file after a successful
// upload. internal/archive provides the GCS and no-op implementations.
type Archiver interface {
	Save(ctx context.Context, filename string, data []byte) error
}

// UploadResult is the contract returned to the surrounding layer after one
// statement upload.
type UploadResult struct {
	Accepted          int64  `json:"accepted"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	TotalInFile       int    `json:"total_in_file"`
	Account           string `json:"account"`
}

// Service runs the full ingestion flow for one uploaded statement: parse,
// dedup against the store, insert, transfer sweep, archive.
type Service struct {
	store   ledger.Store
	archive Archiver
	log     zerolog.Logger
}

// NewService creates the ingestion service. Pass archive.Noop when archiving
// is not configured.
func NewService(store ledger.Store, archiver Archiver, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		archive: archiver,
		log:     log,
	}
}

// Upload ingests one statement file. Parse failures abort the whole upload
// with ledger.ErrMalformedInput and nothing is inserted; duplicates and
// silently dropped rows are counts, not errors.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	stmt, err := ParseStatement(data, filename)
	if err != nil {
		return nil, err
	}

	if len(stmt.Records) == 0 {
		return nil, fmt.Errorf("%w: no transactions found in file", ledger.ErrMalformedInput)
	}

	known, err := s.store.ExistingExternalIDs(ctx, stmt.Account)
	if err != nil {
		return nil, fmt.Errorf("upload: fetching known ids for account %s: %w", stmt.Account, err)
	}

	fresh, duplicates := FilterDuplicates(stmt.Records, known)

	var inserted int64
	if len(fresh) > 0 {
		inserted, err = s.store.InsertRecords(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("upload: inserting records: %w", err)
		}
	}

	// Rows the filter accepted but the unique constraint rejected were
	// inserted by a concurrent upload of the same statement. They became
	// duplicates, not failures.
	duplicates += len(fresh) - int(inserted)

	if inserted > 0 {
		marked, err := s.store.MarkInternalTransfers(ctx)
		if err != nil {
			// The upload itself is committed; the sweep is idempotent and
			// will catch up on the next one.
			s.log.Error().Err(err).Msg("Transfer sweep failed after upload")
		} else if marked > 0 {
			s.log.Info().Int64("marked", marked).Msg("Flagged internal transfers")
		}
	}

	if err := s.archive.Save(ctx, filename, data); err != nil {
		s.log.Warn().Err(err).Str("filename", filename).Msg("Failed to archive statement file")
	}

	result := &UploadResult{
		Accepted:          inserted,
		DuplicatesSkipped: duplicates,
		TotalInFile:       stmt.TotalRows,
		Account:           stmt.Account,
	}

	s.log.Info().
		Str("account", result.Account).
		Int("total_in_file", result.TotalInFile).
		Int64("accepted", result.Accepted).
		Int("duplicates_skipped", result.DuplicatesSkipped).
		Msg("Statement ingested")

	return result, nil
}
