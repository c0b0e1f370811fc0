package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// Result summarizes one bulk classification run.
type Result struct {
	// Processed is the size of the working set, including records in failed
	// batches.
	Processed int `json:"processed"`

	// Classified is the number of records actually assigned a category.
	Classified int `json:"classified"`

	// Errors holds one message per failed batch, in batch order.
	Errors []string `json:"errors"`
}

// Orchestrator is the synchronous bulk mode: every batch dispatched in
// parallel under a concurrency cap, results gathered, then applied to the
// store in a single commit.
type Orchestrator struct {
	store       ledger.Store
	client      Client
	taxonomy    taxonomy.Provider
	batchSize   int
	maxParallel int
	log         zerolog.Logger
}

// NewOrchestrator creates the bulk orchestrator. batchSize is clamped to
// MaxBatchSize; maxParallel sizes the semaphore and should match the
// classification service's rate limit.
func NewOrchestrator(store ledger.Store, client Client, provider taxonomy.Provider, batchSize, maxParallel int, log zerolog.Logger) *Orchestrator {
	if batchSize < 1 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Orchestrator{
		store:       store,
		client:      client,
		taxonomy:    provider,
		batchSize:   batchSize,
		maxParallel: maxParallel,
		log:         log,
	}
}

// ClassifyAll classifies the working set in one parallel pass. Batch
// failures are collected in Result.Errors and never abort sibling batches;
// only store failures surface as an error.
func (o *Orchestrator) ClassifyAll(ctx context.Context, recategorize bool) (Result, error) {
	records, err := o.store.PendingClassification(ctx, recategorize)
	if err != nil {
		return Result{}, fmt.Errorf("classify: fetching working set: %w", err)
	}
	if len(records) == 0 {
		return Result{}, nil
	}

	tax, err := o.taxonomy.Taxonomy(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("classify: resolving taxonomy: %w", err)
	}

	batches := Split(records, o.batchSize)

	o.log.Info().
		Int("records", len(records)).
		Int("batches", len(batches)).
		Msg("Starting parallel classification")
	start := time.Now()

	// Counting semaphore: never more than maxParallel calls in flight. Each
	// goroutine owns its own slot in the two result slices, so no locking is
	// needed around them.
	sem := make(chan struct{}, o.maxParallel)
	var wg sync.WaitGroup

	batchErrs := make([]string, len(batches))
	batchResults := make([]map[int64]ledger.Assignment, len(batches))

	for i, batch := range batches {
		wg.Add(1)
		go func(n int, batch []ledger.Record) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			assignments, err := o.client.Classify(ctx, summaries(batch), tax)
			if err != nil {
				batchErrs[n] = fmt.Sprintf("Batch %d failed: %v", n+1, err)
				o.log.Error().Err(err).Int("batch", n+1).Msg("Classification batch failed")
				return
			}
			batchResults[n] = assignments
		}(i, batch)
	}
	wg.Wait()

	all := make(map[int64]ledger.Assignment)
	var errs []string
	for i := range batches {
		if batchErrs[i] != "" {
			errs = append(errs, batchErrs[i])
			continue
		}
		for id, a := range batchResults[i] {
			all[id] = a
		}
	}

	var applied int64
	if len(all) > 0 {
		applied, err = o.store.ApplyAssignments(ctx, all)
		if err != nil {
			return Result{}, fmt.Errorf("classify: applying assignments: %w", err)
		}
	}

	o.log.Info().
		Int("processed", len(records)).
		Int64("classified", applied).
		Int("failed_batches", len(errs)).
		Dur("elapsed", time.Since(start)).
		Msg("Parallel classification complete")

	return Result{
		Processed:  len(records),
		Classified: int(applied),
		Errors:     errs,
	}, nil
}
