// Package ingestion turns uploaded files into published document indices.
//
// Submit validates a batch, records it as a task, and returns at once. Each
// document then runs on its own goroutine through extract → split → embed →
// build → publish. Nothing is shared between documents until the final
// publish into the registry, so one document failing never affects another.
// The outcome of every document is kept on the in-memory Task handle and in
// the status store.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/54b3r/docqa-go/internal/docindex"
	"github.com/54b3r/docqa-go/internal/extract"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/registry"
	"github.com/54b3r/docqa-go/internal/splitter"
	"github.com/54b3r/docqa-go/internal/store"
)

const (
	// DefaultMaxFiles is the maximum number of files in one upload batch.
	DefaultMaxFiles = 5

	// DefaultMaxFileSize is the maximum size of a single uploaded file.
	DefaultMaxFileSize = 20 << 20

	// DefaultEmbedBatchSize is the number of chunks sent per embed call.
	DefaultEmbedBatchSize = 32

	// DefaultEmbedConcurrency bounds parallel embed calls per document.
	DefaultEmbedConcurrency = 4

	// DefaultMaxConcurrentDocuments bounds documents processed at once
	// across all tasks.
	DefaultMaxConcurrentDocuments = 8

	// DefaultDocumentTimeout bounds the processing of a single document.
	DefaultDocumentTimeout = 10 * time.Minute

	// DefaultMaxTrackedTasks is how many task handles are kept in memory.
	DefaultMaxTrackedTasks = 256
)

// Upload is one file received for ingestion. Name becomes the document id.
type Upload struct {
	Name string
	Data []byte
}

// Mirror receives a copy of every published index. *rag.QdrantMirror
// satisfies it.
type Mirror interface {
	Mirror(ctx context.Context, idx *docindex.Index) error
	DeleteDocument(ctx context.Context, id string) error
}

// Config holds the configuration for the ingestion pipeline. Zero values
// select the package defaults.
type Config struct {
	// Splitter controls chunking. A zero ChunkSize selects splitter.DefaultConfig.
	Splitter splitter.Config

	// MaxFiles caps the number of files per batch.
	MaxFiles int

	// MaxFileSize caps the size of each file in bytes.
	MaxFileSize int64

	// EmbedBatchSize is the number of chunks per embed call.
	EmbedBatchSize int

	// EmbedConcurrency bounds parallel embed calls within one document.
	EmbedConcurrency int

	// MaxConcurrentDocuments bounds documents in flight across all tasks.
	MaxConcurrentDocuments int64

	// DocumentTimeout bounds the processing of a single document.
	DocumentTimeout time.Duration

	// MaxTrackedTasks caps the task handles kept for Task lookups. The
	// oldest finished tasks are evicted first; the status store keeps them.
	MaxTrackedTasks int
}

func (c Config) withDefaults() Config {
	if c.Splitter.ChunkSize <= 0 {
		c.Splitter = splitter.DefaultConfig()
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if c.MaxConcurrentDocuments <= 0 {
		c.MaxConcurrentDocuments = DefaultMaxConcurrentDocuments
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = DefaultDocumentTimeout
	}
	if c.MaxTrackedTasks <= 0 {
		c.MaxTrackedTasks = DefaultMaxTrackedTasks
	}
	return c
}

// Deps are the collaborators of a Pipeline. Embedder, Registry and Statuses
// are required.
type Deps struct {
	Embedder  rag.Embedder
	Extractor extract.Extractor
	Registry  *registry.Registry
	Statuses  store.StatusStore
	Mirror    Mirror
	Metrics   *Metrics
}

// Pipeline runs document ingestion in the background.
type Pipeline struct {
	embedder  rag.Embedder
	extractor extract.Extractor
	registry  *registry.Registry
	statuses  store.StatusStore
	mirror    Mirror
	metrics   *Metrics
	cfg       Config

	// sem bounds documents in flight.
	sem *semaphore.Weighted

	// lifecycle serialises publish and delete together with the status
	// write that follows each. Status reads under it too, so a ready status
	// is reported exactly when the registry holds the document.
	lifecycle sync.Mutex

	// mirrorMu serialises writes to the mirror. Each write re-checks the
	// registry under it, so the mirror converges to what the registry holds.
	mirrorMu sync.Mutex

	// wg tracks every background document goroutine for Shutdown.
	wg sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*Task
	taskOrder []string
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("ingestion: registry must not be nil")
	}
	if deps.Statuses == nil {
		return nil, fmt.Errorf("ingestion: status store must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Splitter.Validate(); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}

	return &Pipeline{
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		registry:  deps.Registry,
		statuses:  deps.Statuses,
		mirror:    deps.Mirror,
		metrics:   deps.Metrics,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentDocuments),
		tasks:     make(map[string]*Task),
	}, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Submit validates uploads, records a task, and starts one background
// ingestion per file. It returns as soon as the work is scheduled; the
// returned Task reports completion. Background work is detached from ctx's
// cancellation but keeps its values, including the logger.
func (p *Pipeline) Submit(ctx context.Context, uploads []Upload) (*Task, error) {
	if err := p.validate(uploads); err != nil {
		return nil, err
	}

	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.Name
	}

	task := newTask(uuid.NewString(), names)
	if err := p.statuses.RecordTask(ctx, task.ID, names); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	p.track(task)

	bg, log := logging.With(context.WithoutCancel(ctx), slog.String("task_id", task.ID))
	log.Info("ingestion: task accepted", slog.Any("documents", names))

	for i, u := range uploads {
		// Generations are taken in submission order so the most recently
		// submitted upload of a name wins regardless of finishing order.
		gen := p.registry.Begin(u.Name)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			task.record(i, p.ingest(bg, task.ID, u, gen))
		}()
	}
	return task, nil
}

// validate rejects batches that break the upload limits.
func (p *Pipeline) validate(uploads []Upload) error {
	if len(uploads) == 0 {
		return fmt.Errorf("ingestion: no files uploaded: %w", rag.ErrValidation)
	}
	if len(uploads) > p.cfg.MaxFiles {
		return fmt.Errorf("ingestion: %d files exceeds the limit of %d: %w", len(uploads), p.cfg.MaxFiles, rag.ErrValidation)
	}
	seen := make(map[string]struct{}, len(uploads))
	for _, u := range uploads {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("ingestion: file name must not be empty: %w", rag.ErrValidation)
		}
		if int64(len(u.Data)) > p.cfg.MaxFileSize {
			return fmt.Errorf("ingestion: %q is %d bytes, limit is %d: %w", u.Name, len(u.Data), p.cfg.MaxFileSize, rag.ErrValidation)
		}
		if _, dup := seen[u.Name]; dup {
			return fmt.Errorf("ingestion: %q appears more than once in the batch: %w", u.Name, rag.ErrValidation)
		}
		seen[u.Name] = struct{}{}
	}
	return nil
}

// ingest processes a single document end to end and returns its outcome.
func (p *Pipeline) ingest(ctx context.Context, taskID string, u Upload, gen registry.Generation) DocumentResult {
	ctx, log := logging.With(ctx, slog.String("document", u.Name))
	start := time.Now()
	p.metrics.inFlight(1)
	defer p.metrics.inFlight(-1)

	res := p.process(ctx, taskID, u, gen)
	res.Duration = time.Since(start)
	if res.State != store.StateReady {
		p.registry.Abandon(gen)
	}

	switch res.State {
	case store.StateReady:
		log.Info("ingestion: document ready",
			slog.Int("chunks", res.Chunks),
			slog.Duration("duration", res.Duration),
		)
	case store.StateSuperseded:
		log.Warn("ingestion: document superseded before publish",
			slog.Duration("duration", res.Duration),
		)
		p.setStatus(ctx, store.DocumentStatus{DocumentID: u.Name, TaskID: taskID, State: res.State, Error: res.Err.Error()})
	default:
		log.Error("ingestion: document failed",
			slog.Any("error", res.Err),
			slog.Duration("duration", res.Duration),
		)
		p.setStatus(ctx, store.DocumentStatus{DocumentID: u.Name, TaskID: taskID, State: res.State, Error: res.Err.Error()})
	}
	p.metrics.observeDocument(res)
	return res
}

// process runs the stages. Ready statuses are written under the lifecycle
// lock inside publish; every other status is written by the caller.
func (p *Pipeline) process(ctx context.Context, taskID string, u Upload, gen registry.Generation) DocumentResult {
	res := DocumentResult{DocumentID: u.Name, State: store.StateFailed}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		res.Err = fmt.Errorf("ingestion: waiting for a worker: %w", err)
		return res
	}
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.DocumentTimeout)
	defer cancel()

	text, err := p.extractor.Extract(ctx, u.Name, u.Data)
	if err != nil {
		res.Err = fmt.Errorf("ingestion: extract %q: %w", u.Name, err)
		return res
	}

	chunks := splitter.Split(text, p.cfg.Splitter)
	if len(chunks) == 0 {
		res.Err = fmt.Errorf("ingestion: %q contains no text: %w", u.Name, rag.ErrExtraction)
		return res
	}

	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		res.Err = fmt.Errorf("ingestion: embed %q: %w", u.Name, err)
		return res
	}

	idx, err := docindex.Build(u.Name, chunks, vectors)
	if err != nil {
		res.Err = fmt.Errorf("ingestion: index %q: %w", u.Name, err)
		return res
	}

	if err := p.publish(ctx, taskID, gen, idx); err != nil {
		res.Err = err
		if errors.Is(err, registry.ErrStale) {
			res.State = store.StateSuperseded
		}
		return res
	}

	res.State = store.StateReady
	res.Chunks = idx.Len()
	p.mirrorIndex(ctx, gen, idx)
	return res
}

// publish makes idx visible and records it ready in one step with respect
// to Delete.
func (p *Pipeline) publish(ctx context.Context, taskID string, gen registry.Generation, idx *docindex.Index) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if err := p.registry.Publish(gen, idx); err != nil {
		return fmt.Errorf("ingestion: publish %q: %w", idx.ID(), err)
	}
	p.metrics.setReady(p.registry.Len())
	p.setStatus(ctx, store.DocumentStatus{DocumentID: idx.ID(), TaskID: taskID, State: store.StateReady, Chunks: idx.Len()})
	return nil
}

// embedAll embeds chunks in batches with bounded parallelism. Any failed
// batch fails the whole document.
func (p *Pipeline) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EmbedConcurrency)
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(chunks))
		g.Go(func() error {
			batch, err := p.embedder.Embed(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("%w: batch [%d:%d]: %w", rag.ErrEmbedding, start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: batch [%d:%d]: got %d vectors", rag.ErrEmbedding, start, end, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// mirrorIndex copies idx to the external mirror unless gen has since been
// deleted or replaced. Failures are logged and never affect the document's
// state.
func (p *Pipeline) mirrorIndex(ctx context.Context, gen registry.Generation, idx *docindex.Index) {
	if p.mirror == nil {
		return
	}
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()

	log := logging.FromContext(ctx)
	if !p.registry.Holds(gen) {
		log.Debug("ingestion: mirror skipped, generation no longer published")
		return
	}
	if err := p.mirror.Mirror(ctx, idx); err != nil {
		log.Warn("ingestion: mirror failed", slog.Any("error", err))
	}
}

// unmirror removes id from the mirror unless it has been published again
// since the delete.
func (p *Pipeline) unmirror(ctx context.Context, id string) {
	if p.mirror == nil {
		return
	}
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()

	log := logging.FromContext(ctx)
	if _, err := p.registry.Get(id); err == nil {
		log.Debug("ingestion: mirror delete skipped, document published again")
		return
	}
	if err := p.mirror.DeleteDocument(ctx, id); err != nil {
		log.Warn("ingestion: mirror delete failed", slog.Any("error", err))
	}
}

// setStatus records st, logging instead of failing on store errors. ctx is
// expected to carry a logger with the document attribute.
func (p *Pipeline) setStatus(ctx context.Context, st store.DocumentStatus) {
	if err := p.statuses.SetStatus(context.WithoutCancel(ctx), st); err != nil {
		logging.FromContext(ctx).Error("ingestion: failed to record status",
			slog.String("state", string(st.State)),
			slog.Any("error", err),
		)
	}
}

// Delete removes a Ready document. It returns an error wrapping
// rag.ErrNotFound when id has no published index. Any ingestion of id that
// began before the call can no longer publish.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	ctx, log := logging.With(ctx, slog.String("document", id))
	p.lifecycle.Lock()
	err := p.registry.Delete(id)
	if err == nil {
		p.metrics.setReady(p.registry.Len())
		p.setStatus(ctx, store.DocumentStatus{DocumentID: id, State: store.StateDeleted})
	}
	p.lifecycle.Unlock()
	if err != nil {
		return fmt.Errorf("ingestion: delete: %w", err)
	}

	log.Info("ingestion: document deleted")
	p.unmirror(ctx, id)
	return nil
}

// List returns the ids of all Ready documents.
func (p *Pipeline) List() []string {
	return p.registry.List()
}

// Status returns the current status of a document. A document the registry
// holds is always reported ready, with any newer ingestion of the same name
// that is running or did not replace it attached as the attempt. Otherwise
// the latest recorded status is returned.
func (p *Pipeline) Status(ctx context.Context, id string) (*store.DocumentStatus, error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	latest, err := p.statuses.DocumentStatus(ctx, id)
	if err != nil && !errors.Is(err, rag.ErrNotFound) {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	idx, gerr := p.registry.Get(id)
	if gerr != nil {
		if err != nil {
			return nil, fmt.Errorf("ingestion: %w", err)
		}
		return latest, nil
	}
	if latest != nil && latest.State == store.StateReady {
		return latest, nil
	}

	ready, rerr := p.statuses.LatestStatus(ctx, id, store.StateReady)
	if rerr != nil {
		// Published outside the pipeline, or the ready row was never written.
		ready = &store.DocumentStatus{DocumentID: id, State: store.StateReady}
	}
	ready.Chunks = idx.Len()
	ready.Attempt = latest
	return ready, nil
}

// TaskStatus returns the per-document status of a task.
func (p *Pipeline) TaskStatus(ctx context.Context, taskID string) (*store.TaskStatus, error) {
	ts, err := p.statuses.TaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	return ts, nil
}

// Task returns the in-memory handle of a recently submitted task.
func (p *Pipeline) Task(id string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	return t, ok
}

// track stores the task handle, evicting the oldest finished handles once
// the cap is exceeded.
func (p *Pipeline) track(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks[t.ID] = t
	p.taskOrder = append(p.taskOrder, t.ID)

	for i := 0; len(p.tasks) > p.cfg.MaxTrackedTasks && i < len(p.taskOrder); {
		id := p.taskOrder[i]
		old := p.tasks[id]
		select {
		case <-old.Done():
			delete(p.tasks, id)
			p.taskOrder = append(p.taskOrder[:i], p.taskOrder[i+1:]...)
		default:
			i++
		}
	}
}

// Shutdown waits for all background ingestion to finish or ctx to end.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingestion: shutdown: %w", ctx.Err())
	}
}
