package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrEmptyInput is returned when Build is called with zero triangles. Wrap
// with errors.Wrap at the detection site so a caller using errors.Is still
// matches this sentinel.
var ErrEmptyInput = errors.New("bvh: empty triangle input")

// ErrInvariantViolation is the sentinel for any detected breach of the data
// model's structural invariants (sibling adjacency, leaf addressing, full
// triangle coverage). It is always fatal and is never expected in a correct
// build — it signals a programmer error in the pipeline, not a bad input.
var ErrInvariantViolation = errors.New("bvh: invariant violation")

// DegenerateTriangleWarning records a zero-area triangle that was admitted
// as a point-like leaf rather than rejected.
type DegenerateTriangleWarning struct {
	TriangleID uint32
}

func (w DegenerateTriangleWarning) Error() string {
	return fmt.Sprintf("bvh: triangle %d has a zero-area bounding box", w.TriangleID)
}

// BudgetExceededWarning records that the optimizer's deadline fired before
// completing a single full batch. It is never a fatal error: the optimizer
// returns the unoptimized tree alongside this warning.
type BudgetExceededWarning struct {
	BatchesAttempted int
	Elapsed          time.Duration
}

func (w BudgetExceededWarning) Error() string {
	return fmt.Sprintf("bvh: optimizer budget exceeded after %d batches attempted (%s elapsed)", w.BatchesAttempted, w.Elapsed)
}
