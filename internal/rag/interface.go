// Package rag holds the retrieval side of question answering: the interfaces
// shared by ingestion and querying, the error taxonomy, the cross-document
// Retriever that assembles a bounded context, and the optional Qdrant mirror.
// Concrete embedders live in the embedder package so this package never
// depends on a specific backend.
package rag

import (
	"context"

	"github.com/54b3r/docqa-go/internal/docindex"
)

// Embedder converts text into dense vector embeddings. The same Embedder is
// used for document chunks and for questions so both share a dimension.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexSource is the read side of the document registry as seen by the
// Retriever. *registry.Registry satisfies it.
type IndexSource interface {
	// Get returns the Ready index for id, or an error wrapping ErrNotFound.
	Get(id string) (*docindex.Index, error)

	// List returns the ids of all Ready documents.
	List() []string
}

// Query is a question plus an optional subset of document ids to search.
// An empty Documents slice means every Ready document at call time.
type Query struct {
	// Question is the natural-language question.
	Question string

	// Documents restricts the search to these ids. Unknown ids are ignored.
	Documents []string
}

// DocumentHits is the ranked result of searching a single document.
type DocumentHits struct {
	// DocumentID is the id of the searched document.
	DocumentID string

	// Hits is ordered by descending score, ties by ascending chunk sequence.
	Hits []docindex.Hit
}

// Result is the assembled retrieval context for a Query.
type Result struct {
	// Found is false when no searched document produced any hit. Callers use
	// it to skip the generative model entirely.
	Found bool

	// Context is the merged chunk text, truncated to the configured budget.
	// Empty when Found is false.
	Context string

	// Sources lists the documents whose chunks contributed to Context, in the
	// order they were merged.
	Sources []string
}
