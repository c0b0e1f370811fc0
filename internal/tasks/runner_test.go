package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/classify"
	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

type mockStore struct {
	pendingFunc func(ctx context.Context, includeClassified bool) ([]ledger.Record, error)
	applyFunc   func(ctx context.Context, assignments map[int64]ledger.Assignment) (int64, error)
}

func (m *mockStore) ExistingExternalIDs(context.Context, string) (map[string]struct{}, error) {
	return nil, nil
}
func (m *mockStore) InsertRecords(context.Context, []ledger.Record) (int64, error) { return 0, nil }
func (m *mockStore) PendingClassification(ctx context.Context, includeClassified bool) ([]ledger.Record, error) {
	return m.pendingFunc(ctx, includeClassified)
}
func (m *mockStore) ApplyAssignments(ctx context.Context, assignments map[int64]ledger.Assignment) (int64, error) {
	if m.applyFunc != nil {
		return m.applyFunc(ctx, assignments)
	}
	return int64(len(assignments)), nil
}
func (m *mockStore) UpdateRecordCategory(context.Context, int64, string, string) error { return nil }
func (m *mockStore) MarkInternalTransfers(context.Context) (int64, error)              { return 0, nil }
func (m *mockStore) ClassificationCounts(context.Context) (ledger.Counts, error) {
	return ledger.Counts{}, nil
}
func (m *mockStore) Categories(context.Context) ([]taxonomy.Category, error)      { return nil, nil }
func (m *mockStore) ReplaceCategories(context.Context, []taxonomy.Category) error { return nil }

var _ ledger.Store = (*mockStore)(nil)

type mockClient struct {
	classifyFunc func(ctx context.Context, batch []classify.Summary, tax taxonomy.Set) (map[int64]ledger.Assignment, error)
}

func (m *mockClient) Classify(ctx context.Context, batch []classify.Summary, tax taxonomy.Set) (map[int64]ledger.Assignment, error) {
	return m.classifyFunc(ctx, batch, tax)
}

func testRecords(n int) []ledger.Record {
	records := make([]ledger.Record, n)
	for i := range records {
		records[i] = ledger.Record{
			ID:         int64(i + 1),
			ExternalID: fmt.Sprintf("ext-%d", i+1),
			Account:    "12345678",
			Date:       civil.Date{Year: 2024, Month: 3, Day: 1},
		}
	}
	return records
}

func classifyEverything(batch []classify.Summary) map[int64]ledger.Assignment {
	out := make(map[int64]ledger.Assignment, len(batch))
	for _, s := range batch {
		out[s.ID] = ledger.Assignment{Category: "Other", Subcategory: "Uncategorized"}
	}
	return out
}

// waitTerminal polls the registry until the task reaches a terminal status,
// asserting the processed counter never overshoots the total.
func waitTerminal(t *testing.T, reg *Registry, id string) Snapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := reg.Get(id)
		if err != nil {
			t.Fatalf("polling task: %v", err)
		}
		if snap.Processed > snap.Total {
			t.Fatalf("processed %d exceeds total %d", snap.Processed, snap.Total)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal status")
	return Snapshot{}
}

func newTestRunner(store *mockStore, client *mockClient, batchSize int) (*Runner, *Registry) {
	reg := NewRegistry()
	provider := taxonomy.NewStaticProvider(taxonomy.Static())
	return NewRunner(reg, store, client, provider, batchSize, zerolog.Nop()), reg
}

func TestRunnerCompletesRun(t *testing.T) {
	records := testRecords(5)
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return records, nil },
	}
	client := &mockClient{
		classifyFunc: func(_ context.Context, batch []classify.Summary, _ taxonomy.Set) (map[int64]ledger.Assignment, error) {
			return classifyEverything(batch), nil
		},
	}
	runner, reg := newTestRunner(store, client, 2)

	snap, created, err := runner.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new task")
	}
	if snap.Status != StatusPending || snap.Total != 5 {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}

	final := waitTerminal(t, reg, snap.TaskID)
	if final.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Processed != 5 || final.Classified != 5 {
		t.Errorf("counters = %d/%d, want 5/5", final.Processed, final.Classified)
	}
	if len(final.Errors) != 0 {
		t.Errorf("unexpected errors: %v", final.Errors)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Error("missing timestamps on a completed task")
	}
}

func TestRunnerBatchFailureIsNotFatal(t *testing.T) {
	records := testRecords(3)
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return records, nil },
	}
	client := &mockClient{
		classifyFunc: func(_ context.Context, batch []classify.Summary, _ taxonomy.Set) (map[int64]ledger.Assignment, error) {
			if batch[0].ID == 2 {
				return nil, fmt.Errorf("%w: simulated outage", classify.ErrServiceUnavailable)
			}
			return classifyEverything(batch), nil
		},
	}
	runner, reg := newTestRunner(store, client, 1)

	snap, _, err := runner.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := waitTerminal(t, reg, snap.TaskID)
	if final.Status != StatusCompleted {
		t.Errorf("status = %s, want completed despite a failed batch", final.Status)
	}
	if final.Processed != 3 {
		t.Errorf("processed = %d, want 3 (failed batch still counts)", final.Processed)
	}
	if final.Classified != 2 {
		t.Errorf("classified = %d, want 2", final.Classified)
	}
	if len(final.Errors) != 1 || !strings.Contains(final.Errors[0], "Batch 2") {
		t.Errorf("expected one error referencing batch 2, got %v", final.Errors)
	}
}

func TestRunnerSecondStartReturnsLiveTask(t *testing.T) {
	records := testRecords(2)
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return records, nil },
	}

	release := make(chan struct{})
	client := &mockClient{
		classifyFunc: func(_ context.Context, batch []classify.Summary, _ taxonomy.Set) (map[int64]ledger.Assignment, error) {
			<-release
			return classifyEverything(batch), nil
		},
	}
	runner, reg := newTestRunner(store, client, 1)

	first, created, err := runner.Start(context.Background(), false)
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}

	second, created, err := runner.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created {
		t.Fatal("second start created a concurrent task")
	}
	if second.TaskID != first.TaskID {
		t.Errorf("second start returned %s, want %s", second.TaskID, first.TaskID)
	}

	close(release)
	waitTerminal(t, reg, first.TaskID)

	// With the first task terminal a new one may start.
	third, created, err := runner.Start(context.Background(), false)
	if err != nil || !created {
		t.Fatalf("third start: created=%v err=%v", created, err)
	}
	if third.TaskID == first.TaskID {
		t.Error("new task reused the finished task's id")
	}
	waitTerminal(t, reg, third.TaskID)
}

func TestRunnerCancellationAtBatchBoundary(t *testing.T) {
	records := testRecords(3)
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return records, nil },
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	client := &mockClient{
		classifyFunc: func(_ context.Context, batch []classify.Summary, _ taxonomy.Set) (map[int64]ledger.Assignment, error) {
			entered <- struct{}{}
			<-release
			return classifyEverything(batch), nil
		},
	}
	runner, reg := newTestRunner(store, client, 1)

	snap, _, err := runner.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Cancel while batch 1 is in flight: the batch must finish and commit,
	// then the runner stops before batch 2.
	<-entered
	if _, err := reg.RequestCancel(snap.TaskID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	release <- struct{}{}

	final := waitTerminal(t, reg, snap.TaskID)
	if final.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", final.Status)
	}
	if final.Processed != 1 || final.Classified != 1 {
		t.Errorf("counters = %d/%d, want 1/1 (in-flight batch committed)", final.Processed, final.Classified)
	}
	if final.CompletedAt == nil {
		t.Error("cancelled task missing CompletedAt")
	}
}

func TestRunnerStoreFailureFailsTask(t *testing.T) {
	records := testRecords(2)
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return records, nil },
		applyFunc: func(context.Context, map[int64]ledger.Assignment) (int64, error) {
			return 0, errors.New("store unavailable")
		},
	}
	client := &mockClient{
		classifyFunc: func(_ context.Context, batch []classify.Summary, _ taxonomy.Set) (map[int64]ledger.Assignment, error) {
			return classifyEverything(batch), nil
		},
	}
	runner, reg := newTestRunner(store, client, 1)

	snap, _, err := runner.Start(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := waitTerminal(t, reg, snap.TaskID)
	if final.Status != StatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if len(final.Errors) == 0 {
		t.Error("failed task should record the error")
	}

	// The registry stays consistent: the next run can start.
	if _, created, err := runner.Start(context.Background(), false); err != nil || !created {
		t.Fatalf("registry not usable after failure: created=%v err=%v", created, err)
	}
}

func TestRunnerStartFetchFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	store := &mockStore{
		pendingFunc: func(context.Context, bool) ([]ledger.Record, error) { return nil, storeErr },
	}
	runner, reg := newTestRunner(store, &mockClient{}, 1)

	if _, _, err := runner.Start(context.Background(), false); !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, ok := reg.Active(); ok {
		t.Error("no task should exist after a failed start")
	}
}
