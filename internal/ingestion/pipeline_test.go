package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/docindex"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/registry"
	"github.com/54b3r/docqa-go/internal/store"
)

// gatedEmbedder blocks Embed calls whose batch contains match until
// release is called. Other batches pass straight through.
type gatedEmbedder struct {
	inner   rag.Embedder
	match   string
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedEmbedder(match string) *gatedEmbedder {
	return &gatedEmbedder{
		inner:   embedder.NewLocalEmbedder(64),
		match:   match,
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 64),
	}
}

func (g *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, g.match) {
			g.entered <- struct{}{}
			select {
			case <-g.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			break
		}
	}
	return g.inner.Embed(ctx, texts)
}

func (g *gatedEmbedder) release() { g.once.Do(func() { close(g.gate) }) }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

// recordingMirror captures mirror calls and tracks which documents the
// mirror would hold. When gate is set, Mirror signals entered and blocks on
// gate before writing.
type recordingMirror struct {
	mu       sync.Mutex
	mirrored []string
	deleted  []string
	live     map[string]bool
	fail     bool

	gate    chan struct{}
	entered chan struct{}
}

func (m *recordingMirror) Mirror(_ context.Context, idx *docindex.Index) error {
	if m.gate != nil {
		m.entered <- struct{}{}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("qdrant down")
	}
	m.mirrored = append(m.mirrored, idx.ID())
	if m.live == nil {
		m.live = make(map[string]bool)
	}
	m.live[idx.ID()] = true
	return nil
}

func (m *recordingMirror) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.live, id)
	return nil
}

func (m *recordingMirror) holds(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[id]
}

type fixture struct {
	pipeline *Pipeline
	registry *registry.Registry
	statuses *store.SQLiteStore
	mirror   *recordingMirror
	metrics  *Metrics
}

func newFixture(t *testing.T, emb rag.Embedder, cfg Config) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New()
	mirror := &recordingMirror{}
	metrics := NewMetrics(prometheus.NewRegistry())
	p, err := NewPipeline(Deps{
		Embedder: emb,
		Registry: reg,
		Statuses: st,
		Mirror:   mirror,
		Metrics:  metrics,
	}, cfg)
	require.NoError(t, err)
	return &fixture{pipeline: p, registry: reg, statuses: st, mirror: mirror, metrics: metrics}
}

func waitTask(t *testing.T, task *Task) []DocumentResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := task.Wait(ctx)
	require.NoError(t, err)
	return results
}

func textUpload(name, body string) Upload {
	return Upload{Name: name, Data: []byte(body)}
}

func TestNewPipeline_RequiresDeps(t *testing.T) {
	t.Parallel()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = NewPipeline(Deps{Registry: registry.New(), Statuses: st}, Config{})
	assert.ErrorContains(t, err, "embedder")
	_, err = NewPipeline(Deps{Embedder: failingEmbedder{}, Statuses: st}, Config{})
	assert.ErrorContains(t, err, "registry")
	_, err = NewPipeline(Deps{Embedder: failingEmbedder{}, Registry: registry.New()}, Config{})
	assert.ErrorContains(t, err, "status store")
}

func TestNewPipeline_Defaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingEmbedder{}, Config{})
	cfg := f.pipeline.Config()
	assert.Equal(t, 1000, cfg.Splitter.ChunkSize)
	assert.Equal(t, 200, cfg.Splitter.ChunkOverlap)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.Equal(t, int64(20<<20), cfg.MaxFileSize)
	assert.Equal(t, DefaultMaxTrackedTasks, cfg.MaxTrackedTasks)
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(32), Config{MaxFileSize: 16})

	six := make([]Upload, 6)
	for i := range six {
		six[i] = textUpload(fmt.Sprintf("f%d.txt", i), "x")
	}

	tests := []struct {
		name    string
		uploads []Upload
		wantMsg string
	}{
		{name: "no files", uploads: nil, wantMsg: "no files"},
		{name: "too many files", uploads: six, wantMsg: "limit of 5"},
		{name: "empty name", uploads: []Upload{textUpload("  ", "x")}, wantMsg: "name must not be empty"},
		{name: "oversized", uploads: []Upload{textUpload("big.txt", strings.Repeat("a", 17))}, wantMsg: "limit is 16"},
		{
			name:    "duplicate names",
			uploads: []Upload{textUpload("a.txt", "one"), textUpload("a.txt", "two")},
			wantMsg: "more than once",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Submit(context.Background(), tt.uploads)
			require.Error(t, err)
			assert.ErrorIs(t, err, rag.ErrValidation)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
	assert.Empty(t, f.pipeline.List())
}

func TestSubmit_SingleDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	task, err := f.pipeline.Submit(ctx, []Upload{textUpload("paris.txt", "Paris is the capital of France.")})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, []string{"paris.txt"}, task.Documents)

	results := waitTask(t, task)
	require.Len(t, results, 1)
	assert.Equal(t, store.StateReady, results[0].State)
	assert.Equal(t, 1, results[0].Chunks)
	assert.NoError(t, results[0].Err)

	idx, err := f.registry.Get("paris.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris is the capital of France."}, idx.Texts())
	assert.Equal(t, []string{"paris.txt"}, f.pipeline.List())

	st, err := f.pipeline.Status(ctx, "paris.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	assert.Equal(t, task.ID, st.TaskID)
	assert.Equal(t, 1, st.Chunks)

	ts, err := f.pipeline.TaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ts.Done())

	got, ok := f.pipeline.Task(task.ID)
	require.True(t, ok)
	assert.Same(t, task, got)

	assert.Equal(t, []string{"paris.txt"}, f.mirror.mirrored)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.documentsTotal.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.readyDocuments))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.inFlightDocuments))
}

func TestSubmit_ChunksLongDocuments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{EmbedBatchSize: 2})

	var paragraphs []string
	for i := range 12 {
		paragraphs = append(paragraphs, strings.Repeat(fmt.Sprintf("word%d ", i), 40))
	}
	task, err := f.pipeline.Submit(context.Background(), []Upload{textUpload("long.md", strings.Join(paragraphs, "\n\n"))})
	require.NoError(t, err)

	results := waitTask(t, task)
	require.Equal(t, store.StateReady, results[0].State)
	assert.Greater(t, results[0].Chunks, 2)

	idx, err := f.registry.Get("long.md")
	require.NoError(t, err)
	assert.Equal(t, results[0].Chunks, idx.Len())
	for _, text := range idx.Texts() {
		assert.LessOrEqual(t, len([]rune(text)), 1000)
	}
}

func TestSubmit_FailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	task, err := f.pipeline.Submit(ctx, []Upload{
		textUpload("good.txt", "The mitochondria is the powerhouse of the cell."),
		{Name: "blob.bin", Data: []byte{0x00, 0x01, 0x02, 0xff, 0xfe}},
		textUpload("blank.txt", "   \n\n  "),
	})
	require.NoError(t, err)

	results := waitTask(t, task)
	require.Len(t, results, 3)
	assert.Equal(t, store.StateReady, results[0].State)
	assert.Equal(t, store.StateFailed, results[1].State)
	assert.ErrorIs(t, results[1].Err, rag.ErrExtraction)
	assert.Equal(t, store.StateFailed, results[2].State)
	assert.ErrorIs(t, results[2].Err, rag.ErrExtraction)

	assert.Equal(t, []string{"good.txt"}, f.pipeline.List())

	st, err := f.pipeline.Status(ctx, "blob.bin")
	require.NoError(t, err)
	assert.Equal(t, store.StateFailed, st.State)
	assert.Contains(t, st.Error, "unsupported file type")

	ts, err := f.pipeline.TaskStatus(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, ts.Documents, 3)
	assert.Equal(t, store.StateReady, ts.Documents[0].State)
	assert.Equal(t, store.StateFailed, ts.Documents[1].State)
	assert.Equal(t, store.StateFailed, ts.Documents[2].State)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.documentsTotal.WithLabelValues("failed")))
}

func TestSubmit_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingEmbedder{}, Config{})
	task, err := f.pipeline.Submit(context.Background(), []Upload{textUpload("a.txt", "some text")})
	require.NoError(t, err)

	results := waitTask(t, task)
	assert.Equal(t, store.StateFailed, results[0].State)
	assert.ErrorIs(t, results[0].Err, rag.ErrEmbedding)
	assert.Empty(t, f.pipeline.List())
	assert.Empty(t, f.mirror.mirrored)
}

func TestSubmit_FiveConcurrentDocuments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})

	var uploads []Upload
	var names []string
	for i := range 5 {
		name := fmt.Sprintf("doc-%d.txt", i)
		names = append(names, name)
		uploads = append(uploads, textUpload(name, fmt.Sprintf("Document %d talks about topic %d.", i, i)))
	}
	task, err := f.pipeline.Submit(context.Background(), uploads)
	require.NoError(t, err)

	for _, r := range waitTask(t, task) {
		assert.Equal(t, store.StateReady, r.State, r.DocumentID)
	}
	assert.ElementsMatch(t, names, f.pipeline.List())
}

func TestSubmit_ConcurrentBatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{MaxConcurrentDocuments: 2})

	var wg sync.WaitGroup
	tasks := make([]*Task, 5)
	for i := range 5 {
		wg.Go(func() {
			task, err := f.pipeline.Submit(context.Background(), []Upload{
				textUpload(fmt.Sprintf("batch-%d.txt", i), "shared vocabulary text"),
			})
			if assert.NoError(t, err) {
				tasks[i] = task
			}
		})
	}
	wg.Wait()

	for _, task := range tasks {
		require.NotNil(t, task)
		waitTask(t, task)
	}
	assert.Len(t, f.pipeline.List(), 5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.pipeline.Shutdown(ctx))
}

func TestSubmit_LatestStartedWins(t *testing.T) {
	t.Parallel()

	emb := newGatedEmbedder("slow")
	f := newFixture(t, emb, Config{})
	ctx := context.Background()

	older, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "slow version one")})
	require.NoError(t, err)
	<-emb.entered

	newer, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "fresh version two")})
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, waitTask(t, newer)[0].State)

	emb.release()
	res := waitTask(t, older)[0]
	assert.Equal(t, store.StateSuperseded, res.State)
	assert.ErrorIs(t, res.Err, registry.ErrStale)

	idx, err := f.registry.Get("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh version two"}, idx.Texts())

	ts, err := f.pipeline.TaskStatus(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateSuperseded, ts.Documents[0].State)
}

func TestDelete_BeatsInFlightIngestion(t *testing.T) {
	t.Parallel()

	emb := newGatedEmbedder("slow")
	f := newFixture(t, emb, Config{})
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "version one")})
	require.NoError(t, err)
	require.Equal(t, store.StateReady, waitTask(t, first)[0].State)

	second, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "slow version two")})
	require.NoError(t, err)
	<-emb.entered

	require.NoError(t, f.pipeline.Delete(ctx, "a.txt"))
	emb.release()

	res := waitTask(t, second)[0]
	assert.Equal(t, store.StateSuperseded, res.State)
	assert.Empty(t, f.pipeline.List())
	_, err = f.registry.Get("a.txt")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	assert.Equal(t, []string{"a.txt"}, f.mirror.deleted)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	err := f.pipeline.Delete(ctx, "missing.txt")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	task, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "alpha"), textUpload("b.txt", "beta")})
	require.NoError(t, err)
	waitTask(t, task)

	require.NoError(t, f.pipeline.Delete(ctx, "a.txt"))
	assert.Equal(t, []string{"b.txt"}, f.pipeline.List())

	st, err := f.pipeline.Status(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateDeleted, st.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.readyDocuments))

	assert.ErrorIs(t, f.pipeline.Delete(ctx, "a.txt"), rag.ErrNotFound)
}

func TestDelete_BetweenPublishAndMirror(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	f.mirror.gate = make(chan struct{})
	f.mirror.entered = make(chan struct{}, 1)
	ctx := context.Background()

	task, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "alpha")})
	require.NoError(t, err)
	<-f.mirror.entered

	deleted := make(chan error, 1)
	go func() { deleted <- f.pipeline.Delete(ctx, "a.txt") }()
	require.Eventually(t, func() bool {
		_, err := f.registry.Get("a.txt")
		return err != nil
	}, 5*time.Second, time.Millisecond)

	close(f.mirror.gate)
	require.NoError(t, <-deleted)
	assert.Equal(t, store.StateReady, waitTask(t, task)[0].State)

	assert.Empty(t, f.pipeline.List())
	assert.False(t, f.mirror.holds("a.txt"), "deleted document must not stay mirrored")
	assert.Equal(t, []string{"a.txt"}, f.mirror.deleted)
}

func TestMirrorIndex_SkipsStaleGeneration(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	idx, err := docindex.Build("a.txt", []string{"alpha"}, [][]float32{{1, 0}})
	require.NoError(t, err)
	gen := f.registry.Begin("a.txt")
	require.NoError(t, f.registry.Publish(gen, idx))
	require.NoError(t, f.pipeline.Delete(ctx, "a.txt"))

	f.pipeline.mirrorIndex(ctx, gen, idx)
	assert.Empty(t, f.mirror.mirrored)
	assert.False(t, f.mirror.holds("a.txt"))
}

func TestUnmirror_SkipsRepublishedDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	task, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "alpha")})
	require.NoError(t, err)
	waitTask(t, task)

	// A delete whose mirror cleanup runs after a newer upload was published
	// must leave the newer points alone.
	f.pipeline.unmirror(ctx, "a.txt")
	assert.Empty(t, f.mirror.deleted)
	assert.True(t, f.mirror.holds("a.txt"))
}

func TestStatus_FailedReuploadKeepsReadyDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "version one")})
	require.NoError(t, err)
	require.Equal(t, store.StateReady, waitTask(t, first)[0].State)

	second, err := f.pipeline.Submit(ctx, []Upload{{Name: "a.txt", Data: []byte{0x00, 0x01, 0x02, 0xff, 0xfe}}})
	require.NoError(t, err)
	res := waitTask(t, second)[0]
	require.Equal(t, store.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, rag.ErrExtraction)

	assert.Equal(t, []string{"a.txt"}, f.pipeline.List())

	st, err := f.pipeline.Status(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	assert.Equal(t, first.ID, st.TaskID)
	assert.Equal(t, 1, st.Chunks)
	require.NotNil(t, st.Attempt)
	assert.Equal(t, store.StateFailed, st.Attempt.State)
	assert.Equal(t, second.ID, st.Attempt.TaskID)

	ts, err := f.pipeline.TaskStatus(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateFailed, ts.Documents[0].State)
}

func TestStatus_ReuploadInProgressKeepsReadyDocument(t *testing.T) {
	t.Parallel()

	emb := newGatedEmbedder("slow")
	f := newFixture(t, emb, Config{})
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "version one")})
	require.NoError(t, err)
	require.Equal(t, store.StateReady, waitTask(t, first)[0].State)

	second, err := f.pipeline.Submit(ctx, []Upload{textUpload("a.txt", "slow version two")})
	require.NoError(t, err)
	<-emb.entered

	st, err := f.pipeline.Status(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	require.NotNil(t, st.Attempt)
	assert.Equal(t, store.StateIngesting, st.Attempt.State)

	emb.release()
	require.Equal(t, store.StateReady, waitTask(t, second)[0].State)

	st, err = f.pipeline.Status(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, st.State)
	assert.Equal(t, second.ID, st.TaskID)
	assert.Nil(t, st.Attempt)
}

func TestSubmit_FailedNamesAreNotRetained(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	ctx := context.Background()

	for i := range 3 {
		task, err := f.pipeline.Submit(ctx, []Upload{{Name: fmt.Sprintf("blob-%d.bin", i), Data: []byte{0x00, 0xff}}})
		require.NoError(t, err)
		require.Equal(t, store.StateFailed, waitTask(t, task)[0].State)
	}
	// A later upload of a failed name publishes normally.
	task, err := f.pipeline.Submit(ctx, []Upload{textUpload("blob-0.bin", "now it is text")})
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, waitTask(t, task)[0].State)
	assert.Equal(t, []string{"blob-0.bin"}, f.pipeline.List())
}

func TestRestart_FileBackedStatusesAreClosedOut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "status.db")
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	p, err := NewPipeline(Deps{Embedder: embedder.NewLocalEmbedder(64), Registry: registry.New(), Statuses: st}, Config{})
	require.NoError(t, err)
	task, err := p.Submit(ctx, []Upload{textUpload("a.txt", "alpha")})
	require.NoError(t, err)
	require.Equal(t, store.StateReady, waitTask(t, task)[0].State)
	require.NoError(t, st.Close())

	st, err = store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	_, err = st.Reconcile(ctx)
	require.NoError(t, err)

	p, err = NewPipeline(Deps{Embedder: embedder.NewLocalEmbedder(64), Registry: registry.New(), Statuses: st}, Config{})
	require.NoError(t, err)
	assert.Empty(t, p.List())

	got, err := p.Status(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, store.StateDeleted, got.State)
	assert.ErrorIs(t, p.Delete(ctx, "a.txt"), rag.ErrNotFound)
}

func TestMirrorFailureDoesNotFailDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	f.mirror.fail = true

	task, err := f.pipeline.Submit(context.Background(), []Upload{textUpload("a.txt", "alpha")})
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, waitTask(t, task)[0].State)
}

func TestStatus_Unknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{})
	_, err := f.pipeline.Status(context.Background(), "never.txt")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	_, err = f.pipeline.TaskStatus(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, rag.ErrNotFound)
}

func TestTrackedTasksAreBounded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, embedder.NewLocalEmbedder(64), Config{MaxTrackedTasks: 2})
	ctx := context.Background()

	var ids []string
	for i := range 3 {
		task, err := f.pipeline.Submit(ctx, []Upload{textUpload(fmt.Sprintf("%d.txt", i), "text")})
		require.NoError(t, err)
		waitTask(t, task)
		ids = append(ids, task.ID)
	}

	_, ok := f.pipeline.Task(ids[0])
	assert.False(t, ok, "oldest finished task should be evicted")
	_, ok = f.pipeline.Task(ids[2])
	assert.True(t, ok)

	// Evicted handles remain queryable through the status store.
	ts, err := f.pipeline.TaskStatus(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, ts.Done())
}

func TestTask_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	task := newTask("t1", []string{"a.txt"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, store.StateIngesting, results[0].State)

	task.record(0, DocumentResult{DocumentID: "a.txt", State: store.StateReady})
	select {
	case <-task.Done():
	default:
		t.Fatal("Done should be closed after the last document is recorded")
	}
}
