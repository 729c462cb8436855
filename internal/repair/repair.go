// Package repair implements the post-push reconciliation step: given what
// the target accepted and rejected, decide what the new baseline actually
// looks like. The push-result vocabulary (CRUDKind, PushOutcome,
// SingleResult, BatchResult) lives here rather than in internal/orchestrator
// so both packages can depend on it without an import cycle, orchestrator
// calls Repair with the same BatchResult its Target returned.
package repair

import (
	"fmt"

	"deltasync/internal/record"
)

// CRUDKind classifies the operation a single push attempted.
type CRUDKind string

const (
	CRUDCreate CRUDKind = "create"
	CRUDUpdate CRUDKind = "update"
	CRUDDelete CRUDKind = "delete"
)

// PushOutcome classifies how a push (single or batch) went.
type PushOutcome string

const (
	PushSuccess PushOutcome = "success"
	PushPartial PushOutcome = "partial"
	PushFailure PushOutcome = "failure"
)

// SingleResult is the outcome of pushing one record.
type SingleResult struct {
	PrimaryKey []record.Field
	CRUD       CRUDKind
	Status     PushOutcome
	Message    string
}

// BatchResult is the outcome of pushing a whole delta.
type BatchResult struct {
	Status    PushOutcome
	Successes []SingleResult
	Failures  []SingleResult
	Message   string
}

// pkKey renders a primary key as a comparable map key, joining name=value
// pairs in field order.
func pkKey(fields []record.Field) string {
	s := ""
	for i, f := range fields {
		if i > 0 {
			s += "\x1f"
		}
		s += f.Name + "=" + toString(f.Value)
	}
	return s
}

func toString(v record.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Repair reconciles current against previous using pushResult. For each
// failed push whose primary key has a previous fingerprint, the current
// record's hash reverts to that prior fingerprint, the record stays in
// the baseline but will be re-detected as changed and retried next cycle.
// A failed push with no previous fingerprint was a new record the target
// never accepted, so it is dropped. Records that never got a hash at all
// (upstream validation failure) are treated identically to a failure.
//
// A failed delete is different: its primary key is in previous but never
// in current (removed records never enter the current projection), so it
// cannot be found by looking through current[] like the other failures.
// It gets its previous entry reinserted unchanged, keeping it in the
// baseline so it is re-detected as removed and retried next cycle.
func Repair(current, previous []record.FieldSet, pushResult BatchResult, pkFields []string) (repaired []record.FieldSet, restoredCount int) {
	prevByPk := make(map[string]record.FieldSet, len(previous))
	for _, fs := range previous {
		prevByPk[pkKeyFromPkFields(fs, pkFields)] = fs
	}

	failedPk := make(map[string]struct{}, len(pushResult.Failures))
	for _, f := range pushResult.Failures {
		failedPk[pkKey(f.PrimaryKey)] = struct{}{}
	}

	currentPk := make(map[string]struct{}, len(current))

	out := make([]record.FieldSet, 0, len(current))
	for _, fs := range current {
		key := pkKeyFromPkFields(fs, pkFields)
		currentPk[key] = struct{}{}
		_, wasFailure := failedPk[key]
		wasInvalid := !fs.Valid()

		if !wasFailure && !wasInvalid {
			out = append(out, fs)
			continue
		}

		prev, hasPrev := prevByPk[key]
		if !hasPrev {
			// No previous fingerprint to revert to: this was a brand-new
			// record that failed to push, or an invalid new record. It
			// never joins the baseline.
			continue
		}

		reverted := fs
		reverted.Hash = prev.Hash
		reverted.ValidationMessages = nil
		out = append(out, reverted)
		restoredCount++
	}

	for _, f := range pushResult.Failures {
		if f.CRUD != CRUDDelete {
			continue
		}
		key := pkKey(f.PrimaryKey)
		if _, inCurrent := currentPk[key]; inCurrent {
			continue
		}
		prev, hasPrev := prevByPk[key]
		if !hasPrev {
			continue
		}
		out = append(out, prev)
		restoredCount++
	}

	return out, restoredCount
}

func pkKeyFromPkFields(fs record.FieldSet, pkFields []string) string {
	fields := make([]record.Field, 0, len(pkFields))
	for _, name := range pkFields {
		v, _ := fs.Get(name)
		fields = append(fields, record.Field{Name: name, Value: v})
	}
	return pkKey(fields)
}
