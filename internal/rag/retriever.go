package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/docindex"
	"github.com/54b3r/docqa-go/internal/logging"
)

const (
	// DefaultTopK is the number of chunks retrieved from each document.
	DefaultTopK = 3

	// DefaultMaxDocuments is the number of documents, in selection order,
	// whose chunks are merged into the context.
	DefaultMaxDocuments = 3

	// DefaultSearchTimeout bounds a single per-document search.
	DefaultSearchTimeout = 10 * time.Second

	// DefaultMaxConcurrency bounds parallel per-document searches.
	DefaultMaxConcurrency = 8

	// DefaultSeparator joins chunk texts in the merged context.
	DefaultSeparator = "\n\n"
)

// RetrieverConfig holds the tunables for a Retriever. Zero values select the
// package defaults.
type RetrieverConfig struct {
	// TopK is the number of chunks requested from each document.
	TopK int

	// MaxDocuments caps how many documents contribute chunks.
	MaxDocuments int

	// ContextBudget is the maximum context length in characters.
	ContextBudget int

	// SearchTimeout bounds each per-document search. A search that exceeds
	// it contributes no hits.
	SearchTimeout time.Duration

	// MaxConcurrency bounds the number of documents searched in parallel.
	MaxConcurrency int

	// Separator joins chunk texts. Defaults to a blank line.
	Separator string

	// Metrics is optional.
	Metrics *Metrics
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = DefaultMaxDocuments
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = budget.DefaultContextBudget
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Separator == "" {
		c.Separator = DefaultSeparator
	}
	return c
}

// Retriever searches one or more document indices for a question and
// assembles a single bounded context from the results.
type Retriever struct {
	// embedder converts the question to a vector. It must be the embedder
	// the indices were built with.
	embedder Embedder

	// source resolves document ids to their current index.
	source IndexSource

	// cfg holds the resolved tunables.
	cfg RetrieverConfig

	// search runs a single per-document search. Replaced in tests.
	search func(ctx context.Context, idx *docindex.Index, query []float32, k int) ([]docindex.Hit, error)
}

// NewRetriever constructs a Retriever reading indices from source.
func NewRetriever(embedder Embedder, source IndexSource, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("rag: index source must not be nil")
	}
	return &Retriever{
		embedder: embedder,
		source:   source,
		cfg:      cfg.withDefaults(),
		search:   search,
	}, nil
}

// Config returns the resolved configuration.
func (r *Retriever) Config() RetrieverConfig {
	return r.cfg
}

// Retrieve embeds q.Question once, searches every selected document in
// parallel, and merges the hits of the first MaxDocuments documents that
// returned any, in selection order, into a context truncated to
// ContextBudget characters.
//
// A document that is unknown, fails, or times out contributes no hits; it is
// logged and never fails the whole retrieval. Result.Found is false when no
// document produced hits.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	log := logging.FromContext(ctx)

	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, fmt.Errorf("rag: question must not be empty: %w", ErrValidation)
	}

	ids := r.selection(q.Documents)
	if len(ids) == 0 {
		log.Info("rag: no documents to search")
		r.cfg.Metrics.observeRetrieval(false, 0)
		return &Result{}, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question: %w: %w", ErrEmbedding, err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned no vector for question: %w", ErrEmbedding)
	}

	results := r.searchAll(ctx, ids, embeddings[0])
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: retrieval aborted: %w", err)
	}

	res := r.merge(results)
	r.cfg.Metrics.observeRetrieval(res.Found, budget.Len(res.Context))
	log.Info("rag: retrieval complete",
		"searched", len(ids),
		"sources", res.Sources,
		"context_chars", budget.Len(res.Context),
	)
	return res, nil
}

// selection returns the ids to search: the caller's subset with duplicates
// removed, or every Ready document at call time.
func (r *Retriever) selection(subset []string) []string {
	if len(subset) == 0 {
		return r.source.List()
	}
	seen := make(map[string]struct{}, len(subset))
	out := make([]string, 0, len(subset))
	for _, id := range subset {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// searchAll runs one search per id with bounded concurrency. The returned
// slice is parallel to ids; entries for failed searches have no hits.
func (r *Retriever) searchAll(ctx context.Context, ids []string, query []float32) []DocumentHits {
	results := make([]DocumentHits, len(ids))

	// The group context is never cancelled by a search error because
	// searchOne reports failures as empty results rather than errors.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = DocumentHits{DocumentID: id, Hits: r.searchOne(gctx, id, query)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// searchOne searches a single document under the per-search timeout.
func (r *Retriever) searchOne(ctx context.Context, id string, query []float32) []docindex.Hit {
	log := logging.FromContext(ctx).With("document", id)
	start := time.Now()

	idx, err := r.source.Get(id)
	if err != nil {
		log.Warn("rag: document not available", "error", err)
		r.cfg.Metrics.observeSearch("missing", time.Since(start).Seconds())
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	hits, err := r.search(sctx, idx, query, r.cfg.TopK)
	elapsed := time.Since(start).Seconds()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("rag: search timed out", "timeout", r.cfg.SearchTimeout)
		r.cfg.Metrics.observeSearch("timeout", elapsed)
		return nil
	case err != nil:
		log.Warn("rag: search failed", "error", err)
		r.cfg.Metrics.observeSearch("error", elapsed)
		return nil
	case len(hits) == 0:
		r.cfg.Metrics.observeSearch("empty", elapsed)
		return nil
	}
	r.cfg.Metrics.observeSearch("hit", elapsed)
	return hits
}

// search runs idx.Search and abandons it when ctx ends first, so a slow
// search can never hold up the whole retrieval past its timeout.
func search(ctx context.Context, idx *docindex.Index, query []float32, k int) ([]docindex.Hit, error) {
	type outcome struct {
		hits []docindex.Hit
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		hits, err := idx.Search(ctx, query, k)
		done <- outcome{hits, err}
	}()
	select {
	case o := <-done:
		return o.hits, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// merge keeps documents with hits in selection order, takes the first
// MaxDocuments, and joins their chunk texts within the context budget.
func (r *Retriever) merge(results []DocumentHits) *Result {
	var texts []string
	var sources []string
	for _, dh := range results {
		if len(dh.Hits) == 0 {
			continue
		}
		if len(sources) == r.cfg.MaxDocuments {
			break
		}
		sources = append(sources, dh.DocumentID)
		for _, h := range dh.Hits {
			texts = append(texts, h.Text)
		}
	}
	if len(sources) == 0 {
		return &Result{}
	}
	return &Result{
		Found:   true,
		Context: budget.Truncate(strings.Join(texts, r.cfg.Separator), r.cfg.ContextBudget),
		Sources: sources,
	}
}
