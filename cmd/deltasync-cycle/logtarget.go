package main

import (
	"context"
	"log/slog"

	"deltasync/internal/delta"
	"deltasync/internal/orchestrator"
	"deltasync/internal/record"
)

// LogTarget is an example Target that accepts every push and logs it,
// standing in for a real destination system. Grounded on notes' emitter
// pattern (internal/service's EventEmitter) of logging rather than acting.
type LogTarget struct {
	Logger *slog.Logger
}

var _ orchestrator.Target = LogTarget{}
var _ orchestrator.BatchPusher = LogTarget{}

func (t LogTarget) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t LogTarget) PushOne(ctx context.Context, fs record.FieldSet, kind orchestrator.CRUDKind) (orchestrator.SingleResult, error) {
	t.logger().Info("push", "crud", string(kind))
	return orchestrator.SingleResult{CRUD: kind, Status: orchestrator.PushSuccess}, nil
}

func (t LogTarget) PushAll(ctx context.Context, d delta.Delta) (orchestrator.BatchResult, error) {
	log := t.logger()
	result := orchestrator.BatchResult{Status: orchestrator.PushSuccess}

	push := func(fs record.FieldSet, kind orchestrator.CRUDKind) {
		log.Info("push", "crud", string(kind))
		result.Successes = append(result.Successes, orchestrator.SingleResult{
			PrimaryKey: fs.Fields,
			CRUD:       kind,
			Status:     orchestrator.PushSuccess,
		})
	}
	for _, fs := range d.Added {
		push(fs, orchestrator.CRUDCreate)
	}
	for _, fs := range d.Updated {
		push(fs, orchestrator.CRUDUpdate)
	}
	for _, fs := range d.Removed {
		push(fs, orchestrator.CRUDDelete)
	}
	return result, nil
}
