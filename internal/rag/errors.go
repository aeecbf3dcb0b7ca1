package rag

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with
// fmt.Errorf("...: %w", ...) and test them with errors.Is.
var (
	// ErrValidation marks missing or malformed caller input (no question,
	// no files, too many files, oversized file).
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an operation that references a document that is not
	// currently Ready.
	ErrNotFound = errors.New("not found")

	// ErrExtraction marks a document whose bytes could not be turned into text.
	// Only ever recorded against the document; never returned to an uploader.
	ErrExtraction = errors.New("extraction error")

	// ErrEmbedding marks a failure of the embedding backend.
	ErrEmbedding = errors.New("embedding error")

	// ErrGeneration marks a failure of the generative model. It is surfaced
	// synchronously to the Ask caller.
	ErrGeneration = errors.New("generation error")
)
