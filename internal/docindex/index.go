// Package docindex holds the in-memory vector index of a single document.
//
// An Index is built once from the ordered chunk texts of a document and their
// embeddings, and is immutable afterwards. Searches against a shared *Index
// are therefore safe from any number of goroutines without locking.
package docindex

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/vecgo/distance"
)

// Chunk is one indexed passage of a document.
type Chunk struct {
	// Seq is the chunk's position in the original text, starting at 0.
	Seq int

	// Text is the passage content.
	Text string

	// Vector is the L2-normalised embedding of Text.
	Vector []float32
}

// Hit is a search result within a single document.
type Hit struct {
	Seq   int
	Text  string
	Score float32
}

// Index is the vector index of one document.
type Index struct {
	id     string
	chunks []Chunk
	dim    int
}

// Build creates an Index from parallel slices of chunk texts and vectors.
// It either returns a complete index or an error; there is no partial result.
func Build(id string, texts []string, vectors [][]float32) (*Index, error) {
	if id == "" {
		return nil, fmt.Errorf("docindex: document id must not be empty")
	}
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("docindex: %d texts but %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil, ErrEmptyIndex
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("docindex: zero-dimensional vectors")
	}

	chunks := make([]Chunk, len(texts))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("docindex: chunk %d: %w", i, &ErrDimensionMismatch{Expected: dim, Actual: len(v)})
		}
		chunks[i] = Chunk{Seq: i, Text: texts[i], Vector: normalise(v)}
	}

	return &Index{id: id, chunks: chunks, dim: dim}, nil
}

// normalise returns a unit-length copy of v. A zero vector stays zero and
// scores 0 against every query.
func normalise(v []float32) []float32 {
	if n, ok := distance.NormalizeL2Copy(v); ok {
		return n
	}
	return make([]float32, len(v))
}

// ID returns the document id the index was built for.
func (x *Index) ID() string { return x.id }

// Len returns the number of chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimension returns the vector dimension shared by every chunk.
func (x *Index) Dimension() int { return x.dim }

// Texts returns a copy of the chunk texts in sequence order.
func (x *Index) Texts() []string {
	out := make([]string, len(x.chunks))
	for i, c := range x.chunks {
		out[i] = c.Text
	}
	return out
}

// Vectors returns copies of the normalised chunk vectors in sequence order.
func (x *Index) Vectors() [][]float32 {
	out := make([][]float32, len(x.chunks))
	for i, c := range x.chunks {
		out[i] = slices.Clone(c.Vector)
	}
	return out
}

// Search returns the k chunks most similar to query by cosine similarity,
// highest score first. Equal scores are ordered by ascending Seq so results
// are deterministic. k <= 0 returns no hits.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, &ErrDimensionMismatch{Expected: x.dim, Actual: len(query)}
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	q := normalise(query)
	hits := make([]Hit, 0, len(x.chunks))
	for _, c := range x.chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("docindex: search %q: %w", x.id, err)
		}
		hits = append(hits, Hit{Seq: c.Seq, Text: c.Text, Score: clamp(distance.Dot(q, c.Vector))})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Seq - b.Seq
		}
	})

	return hits[:min(k, len(hits))], nil
}

// clamp absorbs float rounding that can push a unit dot product past ±1.
func clamp(s float32) float32 {
	return max(-1, min(1, s))
}
