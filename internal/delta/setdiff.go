package delta

import (
	"context"
	"log/slog"

	"deltasync/internal/record"
)

// SetDiffEngine computes a Delta entirely in memory. Recommended up to
// roughly 200,000 records per side; above that, prefer a relational
// baseline backend, which computes the same delta with SQL joins instead
// of loading both sides into memory.
type SetDiffEngine struct {
	// Logger receives an error-level entry when primary-key ties are detected in the
	// previous baseline, which should never occur if the baseline was
	// written by this package.
	Logger *slog.Logger
}

func (e SetDiffEngine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e SetDiffEngine) ComputeDelta(ctx context.Context, previous, current []record.FieldSet, pkFields []string) (Delta, error) {
	if err := ctx.Err(); err != nil {
		return Delta{}, cancelled(err)
	}

	addedOrUpdated, removedOrUpdated := partitionByHash(previous, current)

	// Special case: empty primary key means there is no way to pair added
	// and removed records into updates.
	if len(pkFields) == 0 {
		return Delta{Added: addedOrUpdated, Updated: nil, Removed: removedOrUpdated}, nil
	}

	// Index removedOrUpdated by primary key for O(1) pairing lookups,
	// tracking insertion order so ties break deterministically and get
	// logged rather than silently dropped (invariant 3 should hold, but
	// defends against it not holding).
	byPK := map[string][]int{}
	order := make([]string, 0, len(removedOrUpdated))
	for i, r := range removedOrUpdated {
		pk, err := record.PrimaryKeyString(r, pkFields)
		if err != nil {
			return Delta{}, err
		}
		if _, seen := byPK[pk]; !seen {
			order = append(order, pk)
		} else {
			e.logger().Error("duplicate primary key in previous baseline", "pk", pk)
		}
		byPK[pk] = append(byPK[pk], i)
	}

	consumed := make(map[int]bool, len(removedOrUpdated))
	var added, updated []record.FieldSet

	for _, a := range addedOrUpdated {
		pk, err := record.PrimaryKeyString(a, pkFields)
		if err != nil {
			return Delta{}, err
		}
		idxs := byPK[pk]
		matched := -1
		for _, idx := range idxs {
			if !consumed[idx] {
				matched = idx
				break
			}
		}
		if matched >= 0 {
			consumed[matched] = true
			updated = append(updated, a)
		} else {
			added = append(added, a)
		}
	}

	var removed []record.FieldSet
	for _, pk := range order {
		for _, idx := range byPK[pk] {
			if !consumed[idx] {
				removed = append(removed, removedOrUpdated[idx])
			}
		}
	}

	return Delta{Added: added, Updated: updated, Removed: removed}, nil
}

// partitionByHash builds hash sets for both sides, then takes
// current-not-in-previous and previous-not-in-current. Records without a
// hash (unvalidated rows) are skipped entirely: they never had a chance to
// enter the baseline, so they can be neither added, updated, nor removed.
func partitionByHash(previous, current []record.FieldSet) (addedOrUpdated, removedOrUpdated []record.FieldSet) {
	previousHashes := hashSet(previous)
	currentHashes := hashSet(current)

	for _, c := range current {
		if c.Hash == "" {
			continue
		}
		if _, ok := previousHashes[c.Hash]; !ok {
			addedOrUpdated = append(addedOrUpdated, c)
		}
	}
	for _, p := range previous {
		if p.Hash == "" {
			continue
		}
		if _, ok := currentHashes[p.Hash]; !ok {
			removedOrUpdated = append(removedOrUpdated, p)
		}
	}
	return addedOrUpdated, removedOrUpdated
}

func hashSet(records []record.FieldSet) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Hash != "" {
			set[r.Hash] = struct{}{}
		}
	}
	return set
}
