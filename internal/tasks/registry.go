package tasks

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns all task state behind one mutex. It is an explicit, injected
// value; reads hand out snapshots so polling never blocks the runner for
// longer than a map lookup and a copy. Finished tasks are kept for polling
// until process exit.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	activeID string
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// newTaskID derives an opaque short id. 8 hex chars of a random UUID is
// plenty for a registry that holds one live task at a time.
func newTaskID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// Get returns a snapshot of the task, or ErrNotFound.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(t), nil
}

// RequestCancel flips the cooperative cancellation flag. It is idempotent
// and a no-op on terminal tasks; either way the current snapshot is
// returned so the caller sees the state it acted on.
func (r *Registry) RequestCancel(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if !t.Status.Terminal() {
		t.CancelRequested = true
	}
	return snapshotOf(t), nil
}

// Active returns the snapshot of the live (pending or running) task, if any.
func (r *Registry) Active() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t := r.activeTask(); t != nil {
		return snapshotOf(t), true
	}
	return Snapshot{}, false
}

func (r *Registry) activeTask() *Task {
	if r.activeID == "" {
		return nil
	}
	t, ok := r.tasks[r.activeID]
	if !ok || t.Status.Terminal() {
		return nil
	}
	return t
}

// begin atomically either returns the live task (created=false) or creates a
// new pending one and makes it active. Only one task can be live at a time.
func (r *Registry) begin(total int) (snap Snapshot, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.activeTask(); t != nil {
		return snapshotOf(t), false
	}

	t := &Task{
		ID:        newTaskID(),
		Status:    StatusPending,
		Total:     total,
		CreatedAt: time.Now(),
	}
	r.tasks[t.ID] = t
	r.activeID = t.ID
	return snapshotOf(t), true
}

// markRunning records the pending → running transition.
func (r *Registry) markRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status != StatusPending {
		return
	}
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
}

// cancelRequested reads the cooperative flag. Checked by the runner at batch
// boundaries only.
func (r *Registry) cancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	return ok && t.CancelRequested
}

// recordBatch folds one finished batch into the counters. A failed batch
// carries errMsg and zero classified; its records still count as processed.
func (r *Registry) recordBatch(id string, processed, classified int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	t.Processed += processed
	t.Classified += classified
	if errMsg != "" {
		t.Errors = append(t.Errors, errMsg)
	}
}

// finish moves the task to a terminal status, stamps CompletedAt and frees
// the active slot. Safe to call once per task; later calls are ignored.
func (r *Registry) finish(id string, status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
	if errMsg != "" {
		t.Errors = append(t.Errors, errMsg)
	}
	if r.activeID == id {
		r.activeID = ""
	}
}
