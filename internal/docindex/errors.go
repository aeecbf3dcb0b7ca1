package docindex

import (
	"errors"
	"fmt"
)

// ErrEmptyIndex is returned by Build when there is nothing to index.
var ErrEmptyIndex = errors.New("docindex: no chunks to index")

// ErrDimensionMismatch reports a vector whose length differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("docindex: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
