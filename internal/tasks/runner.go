package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/classify"
	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// Runner executes classification tasks in the background: one dedicated
// goroutine per run, batches strictly sequential, results committed per
// batch so cancellation keeps prior progress.
type Runner struct {
	registry  *Registry
	store     ledger.Store
	client    classify.Client
	taxonomy  taxonomy.Provider
	batchSize int
	log       zerolog.Logger
}

// NewRunner creates the background runner. The store must be usable outside
// a request scope because the worker outlives the request that started it.
func NewRunner(registry *Registry, store ledger.Store, client classify.Client, provider taxonomy.Provider, batchSize int, log zerolog.Logger) *Runner {
	if batchSize < 1 || batchSize > classify.MaxBatchSize {
		batchSize = classify.MaxBatchSize
	}
	return &Runner{
		registry:  registry,
		store:     store,
		client:    client,
		taxonomy:  provider,
		batchSize: batchSize,
		log:       log,
	}
}

// Start begins a background run, or reports the one already live. The
// returned bool is true when a new task was created. ctx only scopes the
// eligible-set fetch; the worker itself runs on a detached context.
func (r *Runner) Start(ctx context.Context, recategorize bool) (Snapshot, bool, error) {
	records, err := r.store.PendingClassification(ctx, recategorize)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("tasks: fetching working set: %w", err)
	}

	snap, created := r.registry.begin(len(records))
	if !created {
		return snap, false, nil
	}

	r.log.Info().
		Str("task_id", snap.TaskID).
		Int("total", snap.Total).
		Bool("recategorize", recategorize).
		Msg("Background classification task created")

	go r.run(snap.TaskID, records)

	return snap, true, nil
}

// run is the worker goroutine. The task is guaranteed to reach a terminal
// status: a panic or a store failure marks it failed, leaving the registry
// free for the next run.
func (r *Runner) run(id string, records []ledger.Record) {
	// Detached from the initiating request on purpose.
	ctx := context.Background()
	log := r.log.With().Str("task_id", id).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("Classification task panicked")
			r.registry.finish(id, StatusFailed, fmt.Sprintf("internal error: %v", p))
		}
	}()

	tax, err := r.taxonomy.Taxonomy(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Classification task failed resolving taxonomy")
		r.registry.finish(id, StatusFailed, fmt.Sprintf("resolving taxonomy: %v", err))
		return
	}

	batches := classify.Split(records, r.batchSize)

	r.registry.markRunning(id)
	log.Info().Int("batches", len(batches)).Msg("Classification task running")

	for i, batch := range batches {
		// Cooperative cancellation, checked only between batches: an
		// in-flight call always finishes and committed batches stay
		// committed.
		if r.registry.cancelRequested(id) {
			log.Info().Int("completed_batches", i).Msg("Classification task cancelled")
			r.registry.finish(id, StatusCancelled, "")
			return
		}

		summaries := make([]classify.Summary, len(batch))
		for j, record := range batch {
			summaries[j] = classify.SummaryFromRecord(record)
		}

		assignments, err := r.client.Classify(ctx, summaries, tax)
		if err != nil {
			// A failed batch is recorded and skipped, never fatal and never
			// retried here; a retry is a fresh run over what is still
			// unclassified.
			log.Error().Err(err).Int("batch", i+1).Msg("Classification batch failed")
			r.registry.recordBatch(id, len(batch), 0, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			continue
		}

		var applied int64
		if len(assignments) > 0 {
			applied, err = r.store.ApplyAssignments(ctx, assignments)
			if err != nil {
				log.Error().Err(err).Int("batch", i+1).Msg("Classification task failed committing batch")
				r.registry.finish(id, StatusFailed, fmt.Sprintf("applying batch %d: %v", i+1, err))
				return
			}
		}

		r.registry.recordBatch(id, len(batch), int(applied), "")
	}

	r.registry.finish(id, StatusCompleted, "")
	log.Info().Msg("Classification task completed")
}
