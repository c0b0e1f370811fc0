// Package classify sends ledger records to Gemini in fixed-size batches and
// maps the responses onto the category taxonomy. It holds the stateless
// client, the prompt construction and the parallel bulk orchestrator; the
// sequential background variant lives in internal/tasks.
package classify

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// MaxBatchSize is the hard cap on records per classification call. Larger
// batches make Gemini truncate the JSON response, so the client rejects them
// instead of degrading silently.
const MaxBatchSize = 50

// Client is the classification contract. A call fails as a unit: an error
// means zero assignments for every record in the batch.
type Client interface {
	Classify(ctx context.Context, batch []Summary, tax taxonomy.Set) (map[int64]ledger.Assignment, error)
}

// Summary is the minimal view of a record sent to the model.
type Summary struct {
	ID               int64
	Description      string
	CounterpartyName string
	Kind             string
	IsExpense        bool
	Amount           decimal.Decimal
}

// SummaryFromRecord is the single mapping from the canonical record to its
// model-facing summary.
func SummaryFromRecord(r ledger.Record) Summary {
	return Summary{
		ID:               r.ID,
		Description:      r.Description,
		CounterpartyName: r.CounterpartyName,
		Kind:             r.Kind,
		IsExpense:        r.IsExpense,
		Amount:           r.AmountLocal,
	}
}

func summaries(records []ledger.Record) []Summary {
	out := make([]Summary, len(records))
	for i, r := range records {
		out[i] = SummaryFromRecord(r)
	}
	return out
}

// Split cuts records into contiguous batches of at most size records,
// preserving order. Batches are numbered from 1 by their position here.
func Split(records []ledger.Record, size int) [][]ledger.Record {
	if size < 1 {
		size = MaxBatchSize
	}
	var batches [][]ledger.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
