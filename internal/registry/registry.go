// Package registry maps document ids to their published indices.
//
// The registry is the only state shared between ingestion, querying and
// deletion. Indices are published whole, so readers observe either the
// previous index for an id or the new one, never a partial build. Returned
// indices are immutable snapshots: a search that started before a delete or
// a replacement finishes against the index it was handed.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/54b3r/docqa-go/internal/docindex"
	"github.com/54b3r/docqa-go/internal/rag"
)

// ErrStale is returned by Publish when the ingestion that produced the index
// has been overtaken by a delete or by a newer ingestion of the same id.
var ErrStale = errors.New("registry: stale generation")

// Generation identifies one ingestion attempt of a document id.
type Generation struct {
	ID  string
	Seq uint64
}

// entry tracks per-id bookkeeping. It lives while the id has a published
// index or an unfinished generation, and is dropped once it has neither.
type entry struct {
	index *docindex.Index

	// published is the seq of the generation currently held in index.
	published uint64

	// pending holds generations begun and not yet published or abandoned.
	// Delete clears it, which fences off every ingestion already running.
	pending map[uint64]struct{}
}

// Registry is a concurrency-safe map from document id to index.
// The zero value is not usable; call New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	seq     uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Put inserts or replaces the index for idx.ID() unconditionally. A replaced
// id keeps its position in List order.
func (r *Registry) Put(idx *docindex.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.publishLocked(idx.ID(), r.entryLocked(idx.ID()), idx, r.seq)
}

// Begin reserves a generation for a new ingestion of id. The returned token
// must be passed to Publish once the index is built, or to Abandon if the
// ingestion gives up.
func (r *Registry) Begin(id string) Generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entryLocked(id).pending[r.seq] = struct{}{}
	return Generation{ID: id, Seq: r.seq}
}

// Publish makes idx visible under gen.ID. It fails with ErrStale if the id
// was deleted after gen was begun, or if a newer generation has already been
// published. An older generation finishing after a newer one never replaces it.
func (r *Registry) Publish(gen Generation, idx *docindex.Index) error {
	if idx == nil {
		return fmt.Errorf("registry: publish %q: nil index", gen.ID)
	}
	if idx.ID() != gen.ID {
		return fmt.Errorf("registry: publish %q: index built for %q", gen.ID, idx.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[gen.ID]
	if !ok || !e.finish(gen.Seq) || gen.Seq < e.published {
		if ok {
			r.pruneLocked(gen.ID, e)
		}
		return fmt.Errorf("registry: publish %q (generation %d): %w", gen.ID, gen.Seq, ErrStale)
	}
	r.publishLocked(gen.ID, e, idx, gen.Seq)
	return nil
}

// Abandon ends gen without publishing. Ingestions that fail before Publish
// call it so the id's bookkeeping can be released.
func (r *Registry) Abandon(gen Generation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[gen.ID]; ok {
		e.finish(gen.Seq)
		r.pruneLocked(gen.ID, e)
	}
}

// Holds reports whether gen is the generation currently published for its id.
func (r *Registry) Holds(gen Generation) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[gen.ID]
	return ok && e.index != nil && e.published == gen.Seq
}

// Get returns the index for id, or an error wrapping rag.ErrNotFound.
func (r *Registry) Get(id string) (*docindex.Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.index == nil {
		return nil, fmt.Errorf("registry: document %q: %w", id, rag.ErrNotFound)
	}
	return e.index, nil
}

// Delete removes the index for id and fences off every ingestion of id that
// began before the call. Deleting an id that has no published index returns
// an error wrapping rag.ErrNotFound and leaves in-flight ingestions alone.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.index == nil {
		return fmt.Errorf("registry: document %q: %w", id, rag.ErrNotFound)
	}

	e.index = nil
	clear(e.pending)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.pruneLocked(id, e)
	return nil
}

// List returns the ids of all published documents in the order they were
// first published.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of published documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) entryLocked(id string) *entry {
	e, ok := r.entries[id]
	if !ok {
		e = &entry{pending: make(map[uint64]struct{})}
		r.entries[id] = e
	}
	return e
}

// pruneLocked drops e once nothing refers to it. Seqs are global, so a later
// Begin for the same id always outranks anything fenced off before.
func (r *Registry) pruneLocked(id string, e *entry) {
	if e.index == nil && len(e.pending) == 0 {
		delete(r.entries, id)
	}
}

// finish removes seq from the pending set and reports whether it was there.
func (e *entry) finish(seq uint64) bool {
	if _, ok := e.pending[seq]; !ok {
		return false
	}
	delete(e.pending, seq)
	return true
}

func (r *Registry) publishLocked(id string, e *entry, idx *docindex.Index, seq uint64) {
	if e.index == nil {
		r.order = append(r.order, id)
	}
	e.index = idx
	e.published = seq
}
