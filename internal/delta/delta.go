// Package delta implements the two interchangeable delta algorithms,
// SetDiff (in-memory, small populations) and RelationalDiff (SQL, large
// populations), behind a single Engine contract.
package delta

import (
	"context"

	"deltasync/internal/record"
)

// Delta is the {added, updated, removed} triple produced by one
// computation. Order within each group is unspecified except where a
// specific Engine documents otherwise.
type Delta struct {
	Added   []record.FieldSet
	Updated []record.FieldSet
	Removed []record.FieldSet
}

// Empty reports whether every group is empty, the orchestrator's signal to
// skip a push and leave the baseline untouched.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Engine computes a Delta given a previous and current key+hash projection
// and the primary-key field names.
type Engine interface {
	ComputeDelta(ctx context.Context, previous, current []record.FieldSet, pkFields []string) (Delta, error)
}
