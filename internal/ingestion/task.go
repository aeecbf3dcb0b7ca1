package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/store"
)

// DocumentResult is the outcome of ingesting one document of a task.
type DocumentResult struct {
	// DocumentID is the uploaded file name.
	DocumentID string

	// State is StateIngesting until the document finishes.
	State store.State

	// Chunks is the number of indexed chunks when State is StateReady.
	Chunks int

	// Err is set when State is StateFailed or StateSuperseded.
	Err error

	// Duration is the wall time spent on the document.
	Duration time.Duration
}

// Task is the in-memory handle of one submitted batch.
type Task struct {
	ID        string
	Documents []string
	CreatedAt time.Time

	done chan struct{}

	mu      sync.Mutex
	results []DocumentResult
	pending int
}

func newTask(id string, documents []string) *Task {
	results := make([]DocumentResult, len(documents))
	for i, d := range documents {
		results[i] = DocumentResult{DocumentID: d, State: store.StateIngesting}
	}
	return &Task{
		ID:        id,
		Documents: documents,
		CreatedAt: time.Now().UTC(),
		done:      make(chan struct{}),
		results:   results,
		pending:   len(documents),
	}
}

// record stores the outcome of document i and closes Done after the last.
func (t *Task) record(i int, res DocumentResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[i] = res
	t.pending--
	if t.pending == 0 {
		close(t.done)
	}
}

// Done is closed once every document of the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Results returns a snapshot of the per-document outcomes in upload order.
func (t *Task) Results() []DocumentResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DocumentResult, len(t.results))
	copy(out, t.results)
	return out
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) ([]DocumentResult, error) {
	select {
	case <-t.done:
		return t.Results(), nil
	case <-ctx.Done():
		return t.Results(), fmt.Errorf("ingestion: waiting for task %s: %w", t.ID, ctx.Err())
	}
}
