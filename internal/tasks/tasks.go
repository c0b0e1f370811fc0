// Package tasks runs one background classification job at a time: a
// cancellable, pollable task with progress counters, processed batch by
// batch on a single worker goroutine.
package tasks

import (
	"errors"
	"time"
)

// ErrNotFound is returned for an unknown task id.
var ErrNotFound = errors.New("task not found")

// Status is the task state. pending and running are live; the other three
// are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Task is the registry-owned state of one classification run. It is only
// ever mutated under the registry lock by the owning runner.
type Task struct {
	ID              string
	Status          Status
	Total           int
	Processed       int
	Classified      int
	Errors          []string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelRequested bool
	CreatedAt       time.Time
}

// Snapshot is the read-side copy handed out by the registry. It is safe to
// retain: nothing in it aliases live task state.
type Snapshot struct {
	TaskID          string     `json:"task_id"`
	Status          Status     `json:"status"`
	Total           int        `json:"total"`
	Processed       int        `json:"processed"`
	Classified      int        `json:"classified"`
	Errors          []string   `json:"errors"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ElapsedSeconds  float64    `json:"elapsed_seconds"`
	CancelRequested bool       `json:"cancel_requested"`
}

func snapshotOf(t *Task) Snapshot {
	s := Snapshot{
		TaskID:          t.ID,
		Status:          t.Status,
		Total:           t.Total,
		Processed:       t.Processed,
		Classified:      t.Classified,
		Errors:          append([]string(nil), t.Errors...),
		CancelRequested: t.CancelRequested,
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		s.StartedAt = &started

		end := time.Now()
		if t.CompletedAt != nil {
			end = *t.CompletedAt
		}
		s.ElapsedSeconds = end.Sub(started).Seconds()
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		s.CompletedAt = &completed
	}
	return s
}
