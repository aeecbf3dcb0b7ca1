package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hupe1980/vecgo/distance"
)

// defaultLocalDimensions is the vector size of the local embedder.
const defaultLocalDimensions = 256

// LocalEmbedder is a deterministic feature-hashing embedder that needs no
// model server. Each lower-cased word and each word bigram is hashed onto
// one of Dimensions buckets with a hash-derived sign, and the result is
// L2-normalised. Texts sharing vocabulary score high cosine similarity,
// which is enough for offline use and tests. It is safe for concurrent use.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder returns a LocalEmbedder producing vectors of dim
// dimensions. A non-positive dim selects the default of 256.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = defaultLocalDimensions
	}
	return &LocalEmbedder{dim: dim}
}

// Dimensions returns the vector size.
func (e *LocalEmbedder) Dimensions() int { return e.dim }

// Embed converts a batch of texts into their corresponding embeddings.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	v := make([]float32, e.dim)
	words := tokenize(text)
	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	distance.NormalizeL2InPlace(v)
	return v
}

func (e *LocalEmbedder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[bucket] += weight
}

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
