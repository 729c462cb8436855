// Package orchestrator composes the nine-step delta sync cycle: pull, map,
// validate, project, diff, push, limitTo, repair, commit, each step independently
// observable, grounded on notes' internal/service/etl_service.go step
// tracing (translated from log.Printf to structured slog per the ambient
// logging convention).
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"deltasync/internal/baseline"
	"deltasync/internal/clientlock"
	"deltasync/internal/delta"
	"deltasync/internal/deltaerr"
	"deltasync/internal/history"
	"deltasync/internal/record"
	"deltasync/internal/repair"
	"deltasync/internal/validate"
)

// Source pulls the raw payload for one cycle. Concrete adapters (HTTP API,
// file, message queue) are out of scope; this is the seam they implement.
type Source interface {
	FetchRaw(ctx context.Context) (any, error)
}

// Mapper turns a raw payload into a schema and the records it describes.
type Mapper interface {
	Map(ctx context.Context, raw any) (record.Schema, []record.FieldSet, error)
}

// The push-result vocabulary is defined in internal/repair, not here, so
// both this package and repair can depend on it without a cycle.
type (
	CRUDKind     = repair.CRUDKind
	PushOutcome  = repair.PushOutcome
	SingleResult = repair.SingleResult
	BatchResult  = repair.BatchResult
)

const (
	CRUDCreate = repair.CRUDCreate
	CRUDUpdate = repair.CRUDUpdate
	CRUDDelete = repair.CRUDDelete

	PushSuccess = repair.PushSuccess
	PushPartial = repair.PushPartial
	PushFailure = repair.PushFailure
)

// SinglePusher pushes one record at a time.
type SinglePusher interface {
	PushOne(ctx context.Context, fs record.FieldSet, kind CRUDKind) (SingleResult, error)
}

// BatchPusher pushes a whole delta in one call. Targets that implement it
// are preferred over falling back to SinglePusher.
type BatchPusher interface {
	PushAll(ctx context.Context, d delta.Delta) (BatchResult, error)
}

// Target is the minimum a push destination must implement. Most real
// targets should also implement BatchPusher.
type Target interface {
	SinglePusher
}

// Config bundles everything one RunCycle invocation needs.
type Config struct {
	ClientID baseline.ClientID
	Source   Source
	Mapper   Mapper
	Target   Target
	Store    baseline.Store
	Engine   delta.Engine
	Lock     clientlock.Locker
	History  *history.Store // nil for filesystem/objectbucket backends
	Logger   *slog.Logger
}

// Result summarizes one completed cycle.
type Result struct {
	ClientID      baseline.ClientID
	Added         int
	Updated       int
	Removed       int
	RestoredCount int
	NoChanges     bool
	Duration      time.Duration
	Message       string
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// RunCycle executes the nine steps of a delta sync cycle for cfg.ClientID.
func RunCycle(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()
	log := cfg.logger().With("clientId", string(cfg.ClientID))

	// Step 1: pull.
	log.Info("cycle step", "step", "pull")
	raw, err := cfg.Source.FetchRaw(ctx)
	if err != nil {
		if deltaerr.Is(err, deltaerr.Cancelled) {
			return Result{}, err
		}
		return Result{}, deltaerr.Wrap(deltaerr.IO, "pull", err)
	}

	// Step 2: map.
	log.Info("cycle step", "step", "map")
	schema, records, err := cfg.Mapper.Map(ctx, raw)
	if err != nil {
		if deltaerr.Is(err, deltaerr.Cancelled) {
			return Result{}, err
		}
		return Result{}, deltaerr.Wrap(deltaerr.IO, "map", err)
	}
	pkFields := schema.PrimaryKeyFields()

	// Step 3: validate & fingerprint. A validation failure never aborts the
	// cycle; a fingerprint error (a value nested deeper than record.MaxDepth
	// in a field the schema does not depth-check) does.
	log.Info("cycle step", "step", "validate", "count", len(records))
	for i := range records {
		validate.Row(schema, &records[i])
		if records[i].Valid() {
			hash, err := record.Fingerprint(records[i], false)
			if err != nil {
				return Result{}, err
			}
			records[i].Hash = hash
		}
	}

	// Step 4: project.
	log.Info("cycle step", "step", "project")
	projected := make([]record.FieldSet, len(records))
	for i, fs := range records {
		projected[i] = record.Reduce(fs, pkFields)
	}

	unlock, err := cfg.Lock.Lock(ctx, cfg.ClientID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	relStore, isRelational := cfg.Store.(baseline.RelationalCapable)

	// Step 5: compute delta.
	log.Info("cycle step", "step", "delta")
	var d delta.Delta
	var previous []record.FieldSet
	if isRelational {
		if _, err := relStore.StoreCurrent(ctx, cfg.ClientID, projected, pkFields); err != nil {
			return Result{}, err
		}
		d, err = relStore.FetchDelta(ctx, cfg.ClientID, pkFields)
		if err != nil {
			return Result{}, err
		}

		// A history row is owed to every successful fetchDelta, not to
		// every successful cycle: a later push or commit failure must not
		// erase the record that this delta was ever computed.
		if cfg.History != nil {
			entry := history.Entry{
				ClientID:     cfg.ClientID,
				AddedCount:   len(d.Added),
				UpdatedCount: len(d.Updated),
				RemovedCount: len(d.Removed),
				Metadata: history.Metadata{
					ComputationTimeMs: time.Since(start).Milliseconds(),
					TotalCurrent:      len(projected),
					// RelationalDiff never loads the full previous table
					// into memory, so this counts only the previous rows
					// the delta actually touched (updated + removed), not
					// the previous baseline's true size.
					TotalPrevious: len(d.Updated) + len(d.Removed),
				},
			}
			if err := cfg.History.Record(ctx, entry); err != nil {
				log.Warn("record history failed", "error", err)
			}
		}
	} else {
		previous, err = cfg.Store.FetchPrevious(ctx, cfg.ClientID, nil)
		if err != nil {
			return Result{}, err
		}
		d, err = cfg.Engine.ComputeDelta(ctx, previous, projected, pkFields)
		if err != nil {
			return Result{}, err
		}
	}

	if d.Empty() {
		log.Info("cycle step", "step", "no changes")
		return Result{ClientID: cfg.ClientID, NoChanges: true, Duration: time.Since(start)}, nil
	}

	// Step 6: push.
	log.Info("cycle step", "step", "push", "added", len(d.Added), "updated", len(d.Updated), "removed", len(d.Removed))
	pushResult, err := pushDelta(ctx, cfg.Target, d)
	if err != nil {
		if deltaerr.Is(err, deltaerr.Cancelled) {
			return Result{}, err
		}
		return Result{}, deltaerr.Wrap(deltaerr.IO, "push", err)
	}

	// Step 7: limitTo for relational fetchPrevious (failed + invalid pks).
	// Keys must match the "|"-joined pk_value format the relational store
	// scans its rows under (record.PrimaryKeyString), not repair's own
	// name=value key format, or every lookup below would silently miss.
	var limitTo map[string]struct{}
	if isRelational {
		limitTo = make(map[string]struct{})
		for _, f := range pushResult.Failures {
			key, err := record.PrimaryKeyString(record.FieldSet{Fields: f.PrimaryKey}, pkFields)
			if err != nil {
				return Result{}, err
			}
			limitTo[key] = struct{}{}
		}
		for _, fs := range projected {
			if !fs.Valid() {
				key, err := record.PrimaryKeyString(fs, pkFields)
				if err != nil {
					return Result{}, err
				}
				limitTo[key] = struct{}{}
			}
		}
	}

	log.Info("cycle step", "step", "fetch previous for repair")
	previousForRepair := previous
	if isRelational {
		previousForRepair, err = cfg.Store.FetchPrevious(ctx, cfg.ClientID, limitTo)
		if err != nil {
			return Result{}, err
		}
	}

	// Step 8: repair.
	log.Info("cycle step", "step", "repair")
	repaired, restoredCount := repair.Repair(projected, previousForRepair, pushResult, pkFields)

	// Step 9: commit. failureCount counts every failed push and every
	// invalid record, including those Repair dropped rather than restored,
	// so a relational store rewrites its tables from repaired instead of
	// promoting current verbatim whenever anything failed.
	failureCount := len(pushResult.Failures)
	for _, fs := range projected {
		if !fs.Valid() {
			failureCount++
		}
	}
	log.Info("cycle step", "step", "commit", "restored", restoredCount)
	if _, err := cfg.Store.UpdatePrevious(ctx, cfg.ClientID, repaired, pkFields, failureCount); err != nil {
		return Result{}, err
	}

	return Result{
		ClientID:      cfg.ClientID,
		Added:         len(d.Added),
		Updated:       len(d.Updated),
		Removed:       len(d.Removed),
		RestoredCount: restoredCount,
		Duration:      time.Since(start),
	}, nil
}

// pushDelta prefers a BatchPusher, falling back to sequential SinglePusher
// calls in added -> updated -> removed order.
func pushDelta(ctx context.Context, target Target, d delta.Delta) (BatchResult, error) {
	if bp, ok := target.(BatchPusher); ok {
		return bp.PushAll(ctx, d)
	}

	var result BatchResult
	groups := []struct {
		kind    CRUDKind
		records []record.FieldSet
	}{
		{CRUDCreate, d.Added},
		{CRUDUpdate, d.Updated},
		{CRUDDelete, d.Removed},
	}
	for _, g := range groups {
		for _, fs := range g.records {
			sr, err := target.PushOne(ctx, fs, g.kind)
			if err != nil {
				return BatchResult{}, err
			}
			if sr.Status == PushSuccess {
				result.Successes = append(result.Successes, sr)
			} else {
				result.Failures = append(result.Failures, sr)
			}
		}
	}
	switch {
	case len(result.Failures) == 0:
		result.Status = PushSuccess
	case len(result.Successes) == 0:
		result.Status = PushFailure
	default:
		result.Status = PushPartial
	}
	return result, nil
}

