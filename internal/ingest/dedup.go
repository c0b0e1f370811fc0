package ingest

import "github.com/dkvirkvelia/bankledger/internal/ledger"

// FilterDuplicates partitions candidate records into fresh ones and a
// duplicate count, against the external ids already known for the account.
// Accepted ids are added to the known set immediately, so an id repeated
// within one file is accepted once and counted as a duplicate thereafter.
//
// The filter is an optimization only: the store's unique constraint remains
// the authority, which is what keeps concurrent uploads of the same file
// safe. The known set belongs to a single upload and is mutated in place.
func FilterDuplicates(records []ledger.Record, known map[string]struct{}) ([]ledger.Record, int) {
	fresh := make([]ledger.Record, 0, len(records))
	duplicates := 0

	for _, record := range records {
		if _, seen := known[record.ExternalID]; seen {
			duplicates++
			continue
		}
		known[record.ExternalID] = struct{}{}
		fresh = append(fresh, record)
	}

	return fresh, duplicates
}
