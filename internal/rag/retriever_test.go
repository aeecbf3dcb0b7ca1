package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/docindex"
)

// vocab is the fixed vocabulary of keywordEmbedder. Each word is one axis.
var vocab = []string{"paris", "france", "capital", "rust", "go", "memory", "ocean", "blue"}

// keywordEmbedder maps text to a bag-of-keywords vector over vocab. A bias
// axis keeps every vector non-zero.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocab)+1)
		v[len(vocab)] = 0.01
		lower := strings.ToLower(t)
		for j, w := range vocab {
			v[j] = float32(strings.Count(lower, w))
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// mapSource is an in-memory IndexSource with a fixed List order.
type mapSource struct {
	order   []string
	indices map[string]*docindex.Index
}

func (s *mapSource) Get(id string) (*docindex.Index, error) {
	idx, ok := s.indices[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return idx, nil
}

func (s *mapSource) List() []string { return append([]string(nil), s.order...) }

func newSource(t *testing.T, emb Embedder, docs ...[]string) *mapSource {
	t.Helper()
	src := &mapSource{indices: map[string]*docindex.Index{}}
	for _, d := range docs {
		id, texts := d[0], d[1:]
		vecs, err := emb.Embed(context.Background(), texts)
		require.NoError(t, err)
		idx, err := docindex.Build(id, texts, vecs)
		require.NoError(t, err)
		src.order = append(src.order, id)
		src.indices[id] = idx
	}
	return src
}

func newTestRetriever(t *testing.T, emb Embedder, src IndexSource, cfg RetrieverConfig) *Retriever {
	t.Helper()
	r, err := NewRetriever(emb, src, cfg)
	require.NoError(t, err)
	return r
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRetriever(nil, &mapSource{}, RetrieverConfig{})
	assert.Error(t, err)
	_, err = NewRetriever(&keywordEmbedder{}, nil, RetrieverConfig{})
	assert.Error(t, err)
}

func TestRetrieverConfig_Defaults(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &keywordEmbedder{}, &mapSource{}, RetrieverConfig{})
	cfg := r.Config()
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 3, cfg.MaxDocuments)
	assert.Equal(t, 1200, cfg.ContextBudget)
	assert.Equal(t, 10*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, "\n\n", cfg.Separator)
}

func TestRetrieve_EmptyQuestion(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	r := newTestRetriever(t, emb, &mapSource{}, RetrieverConfig{})
	_, err := r.Retrieve(context.Background(), Query{Question: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, emb.Calls())
}

func TestRetrieve_EmptyRegistry(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	r := newTestRetriever(t, emb, &mapSource{}, RetrieverConfig{})
	res, err := r.Retrieve(context.Background(), Query{Question: "What is the capital of France?"})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Context)
	assert.Zero(t, emb.Calls(), "no documents means no embedding call")
}

func TestRetrieve_SingleDocument(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb, []string{"facts.txt",
		"Paris is the capital of France.",
		"The ocean is blue.",
		"Go manages memory with a garbage collector.",
		"Rust has no garbage collector.",
	})
	r := newTestRetriever(t, emb, src, RetrieverConfig{})

	res, err := r.Retrieve(context.Background(), Query{Question: "What is the capital of France?"})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, []string{"facts.txt"}, res.Sources)
	assert.True(t, strings.HasPrefix(res.Context, "Paris is the capital of France."))
	assert.Len(t, strings.Split(res.Context, "\n\n"), 3, "top 3 chunks joined by blank lines")
}

func TestRetrieve_SelectionOrderNotScoreOrder(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb,
		[]string{"weak.txt", "The ocean is blue."},
		[]string{"strong.txt", "Paris is the capital of France."},
	)
	r := newTestRetriever(t, emb, src, RetrieverConfig{})

	res, err := r.Retrieve(context.Background(), Query{Question: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weak.txt", "strong.txt"}, res.Sources)
	assert.Equal(t, "The ocean is blue.\n\nParis is the capital of France.", res.Context)
}

func TestRetrieve_MaxDocuments(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb,
		[]string{"a", "a text"},
		[]string{"b", "b text"},
		[]string{"c", "c text"},
		[]string{"d", "d text"},
		[]string{"e", "e text"},
	)
	r := newTestRetriever(t, emb, src, RetrieverConfig{})

	res, err := r.Retrieve(context.Background(), Query{Question: "anything"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.Sources)
	assert.Equal(t, "a text\n\nb text\n\nc text", res.Context)
}

func TestRetrieve_ContextBudget(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	long := strings.Repeat("Paris is the capital of France. ", 30)
	src := newSource(t, emb,
		[]string{"a", long, long, long},
		[]string{"b", long, long},
	)

	r := newTestRetriever(t, emb, src, RetrieverConfig{})
	res, err := r.Retrieve(context.Background(), Query{Question: "capital"})
	require.NoError(t, err)
	assert.Equal(t, 1200, len([]rune(res.Context)))

	small := newTestRetriever(t, emb, src, RetrieverConfig{ContextBudget: 10})
	res, err = small.Retrieve(context.Background(), Query{Question: "capital"})
	require.NoError(t, err)
	assert.Equal(t, "Paris is t", res.Context)
}

func TestRetrieve_Subset(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb,
		[]string{"a", "alpha"},
		[]string{"b", "beta"},
		[]string{"c", "gamma"},
	)
	r := newTestRetriever(t, emb, src, RetrieverConfig{})

	t.Run("order and dedupe", func(t *testing.T) {
		t.Parallel()
		res, err := r.Retrieve(context.Background(), Query{Question: "q", Documents: []string{"c", "a", "c"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, res.Sources)
		assert.Equal(t, "gamma\n\nalpha", res.Context)
	})

	t.Run("unknown ids ignored", func(t *testing.T) {
		t.Parallel()
		res, err := r.Retrieve(context.Background(), Query{Question: "q", Documents: []string{"missing", "b"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, res.Sources)
	})

	t.Run("only unknown ids", func(t *testing.T) {
		t.Parallel()
		res, err := r.Retrieve(context.Background(), Query{Question: "q", Documents: []string{"missing"}})
		require.NoError(t, err)
		assert.False(t, res.Found)
	})
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	good := &keywordEmbedder{}
	src := newSource(t, good, []string{"a", "alpha"})
	r := newTestRetriever(t, &keywordEmbedder{err: errors.New("backend down")}, src, RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), Query{Question: "q"})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "backend down")
}

func TestRetrieve_SearchFailuresAreZeroHits(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb,
		[]string{"slow", "slow text"},
		[]string{"broken", "broken text"},
		[]string{"ok", "ok text"},
	)
	r := newTestRetriever(t, emb, src, RetrieverConfig{SearchTimeout: 50 * time.Millisecond})

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	r.search = func(ctx context.Context, idx *docindex.Index, q []float32, k int) ([]docindex.Hit, error) {
		switch idx.ID() {
		case "slow":
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case "broken":
			return nil, errors.New("corrupt")
		}
		return idx.Search(ctx, q, k)
	}

	start := time.Now()
	res, err := r.Retrieve(context.Background(), Query{Question: "text"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"ok"}, res.Sources)
	assert.Equal(t, "ok text", res.Context)
}

func TestRetrieve_DimensionMismatchIsZeroHits(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	odd, err := docindex.Build("odd", []string{"x"}, [][]float32{{1, 2}})
	require.NoError(t, err)
	src := newSource(t, emb, []string{"ok", "ok text"})
	src.order = append([]string{"odd"}, src.order...)
	src.indices["odd"] = odd

	r := newTestRetriever(t, emb, src, RetrieverConfig{})
	res, err := r.Retrieve(context.Background(), Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Sources)
}

func TestRetrieve_CancelledContext(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	src := newSource(t, emb, []string{"a", "alpha"})
	r := newTestRetriever(t, emb, src, RetrieverConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Retrieve(ctx, Query{Question: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieve_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	emb := &keywordEmbedder{}
	src := newSource(t, emb, []string{"a", "alpha"})
	r := newTestRetriever(t, emb, src, RetrieverConfig{Metrics: NewMetrics(reg)})

	_, err := r.Retrieve(context.Background(), Query{Question: "q"})
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), Query{Question: "q", Documents: []string{"missing"}})
	require.NoError(t, err)

	m := r.cfg.Metrics
	assert.InDelta(t, 1, testutil.ToFloat64(m.retrievalsTotal.WithLabelValues("found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retrievalsTotal.WithLabelValues("not_found")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.searchDurationSeconds))
}
