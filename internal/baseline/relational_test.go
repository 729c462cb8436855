package baseline

import (
	"context"
	"testing"

	"deltasync/internal/record"
)

func newTestRelational(t *testing.T) *Relational {
	t.Helper()
	r := &Relational{Config: RelationalConfig{Type: "sqlite", Filename: ":memory:"}}
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRelationalFetchPreviousMissingTableIsEmpty(t *testing.T) {
	r := newTestRelational(t)
	out, err := r.FetchPrevious(context.Background(), ClientID("acme"), nil)
	if err != nil {
		t.Fatalf("fetch previous: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for a client with no tables yet, got %+v", out)
	}
}

func TestRelationalUpdatePreviousThenFetchRoundTrip(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	pkFields := []string{"id"}
	data := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: "h2"},
	}

	// UpdatePrevious's no-failure mode promotes from current, so current
	// must carry the data first, mirroring how RunCycle actually drives it.
	if _, err := r.StoreCurrent(context.Background(), client, data, pkFields); err != nil {
		t.Fatalf("store current: %v", err)
	}
	n, err := r.UpdatePrevious(context.Background(), client, data, pkFields, 0)
	if err != nil {
		t.Fatalf("update previous: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows written, got %d", n)
	}

	out, err := r.FetchPrevious(context.Background(), client, nil)
	if err != nil {
		t.Fatalf("fetch previous: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
}

func TestRelationalEnsureTablesRejectsEmptyPKFields(t *testing.T) {
	r := newTestRelational(t)
	if _, err := r.UpdatePrevious(context.Background(), ClientID("acme"), nil, nil, 0); err == nil {
		t.Fatalf("expected an error for empty primary key fields")
	}
}

func TestRelationalFetchDeltaAddedUpdatedRemoved(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	pkFields := []string{"id"}

	previous := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: "h2"},
	}
	// StoreCurrent's own promote step carries this call's rows into previous
	// before the next StoreCurrent overwrites current, so two sequential
	// calls are enough to seed previous and current the way a real cycle
	// would, without reaching for UpdatePrevious directly.
	if _, err := r.StoreCurrent(context.Background(), client, previous, pkFields); err != nil {
		t.Fatalf("seed previous: %v", err)
	}

	current := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},     // unchanged
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: "h2-new"}, // updated
		{Fields: []record.Field{{Name: "id", Value: "3"}}, Hash: "h3"},     // added
	}
	if _, err := r.StoreCurrent(context.Background(), client, current, pkFields); err != nil {
		t.Fatalf("store current: %v", err)
	}

	d, err := r.FetchDelta(context.Background(), client, pkFields)
	if err != nil {
		t.Fatalf("fetch delta: %v", err)
	}
	if len(d.Added) != 1 || d.Added[0].Hash != "h3" {
		t.Fatalf("expected one added record h3, got %+v", d.Added)
	}
	if len(d.Updated) != 1 || d.Updated[0].Hash != "h2-new" {
		t.Fatalf("expected one updated record h2-new, got %+v", d.Updated)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("expected no removed records, got %+v", d.Removed)
	}
}

func TestRelationalUpdatePreviousWithNoFailuresPromotesCurrent(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	pkFields := []string{"id"}

	current := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: "h2"},
	}
	if _, err := r.StoreCurrent(context.Background(), client, current, pkFields); err != nil {
		t.Fatalf("store current: %v", err)
	}

	// data is deliberately stale/wrong to prove a no-failure commit copies
	// from the current table itself rather than trusting the data argument.
	stale := []record.FieldSet{{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "stale"}}
	n, err := r.UpdatePrevious(context.Background(), client, stale, pkFields, 0)
	if err != nil {
		t.Fatalf("update previous: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected previous promoted from current's 2 rows, got %d", n)
	}

	out, err := r.FetchPrevious(context.Background(), client, nil)
	if err != nil {
		t.Fatalf("fetch previous: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected previous to equal current's 2 rows, got %+v", out)
	}
	for _, fs := range out {
		if fs.Hash == "stale" {
			t.Fatalf("expected previous copied from current, not from the data argument, got %+v", out)
		}
	}
}

func TestRelationalUpdatePreviousWithFailuresSyncsCurrentAndPrevious(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	pkFields := []string{"id"}

	previous := []record.FieldSet{{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "old"}}
	if _, err := r.StoreCurrent(context.Background(), client, previous, pkFields); err != nil {
		t.Fatalf("seed previous: %v", err)
	}
	if _, err := r.UpdatePrevious(context.Background(), client, previous, pkFields, 0); err != nil {
		t.Fatalf("seed previous: %v", err)
	}
	current := []record.FieldSet{{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "attempted-new"}}
	if _, err := r.StoreCurrent(context.Background(), client, current, pkFields); err != nil {
		t.Fatalf("store current: %v", err)
	}

	// repair.Repair has already reverted the failed update's hash back to "old".
	repaired := []record.FieldSet{{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "old"}}
	if _, err := r.UpdatePrevious(context.Background(), client, repaired, pkFields, 1); err != nil {
		t.Fatalf("update previous with failures: %v", err)
	}

	prev, err := r.FetchPrevious(context.Background(), client, nil)
	if err != nil {
		t.Fatalf("fetch previous: %v", err)
	}
	if len(prev) != 1 || prev[0].Hash != "old" {
		t.Fatalf("expected previous reset to the repaired hash, got %+v", prev)
	}

	currentTable, _ := r.tableNames(client)
	got, err := r.queryRows(context.Background(), "SELECT pk_value, field_values, hash, validation_messages FROM "+currentTable)
	if err != nil {
		t.Fatalf("query current table: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "old" {
		t.Fatalf("expected current table also reset to the repaired hash so it stays equal to previous, got %+v", got)
	}
}

func TestRelationalFetchPreviousHonorsLimitTo(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	data := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: "h2"},
	}
	if _, err := r.StoreCurrent(context.Background(), client, data, []string{"id"}); err != nil {
		t.Fatalf("seed previous: %v", err)
	}
	if _, err := r.UpdatePrevious(context.Background(), client, data, []string{"id"}, 0); err != nil {
		t.Fatalf("seed previous: %v", err)
	}

	out, err := r.FetchPrevious(context.Background(), client, map[string]struct{}{"1": {}})
	if err != nil {
		t.Fatalf("fetch previous: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly the limited record, got %+v", out)
	}
}

func TestRelationalStoreCurrentSkipsHashlessRecords(t *testing.T) {
	r := newTestRelational(t)
	client := ClientID("acme")
	pkFields := []string{"id"}

	// The second record failed validation upstream and was never
	// fingerprinted, so it must never reach the current table.
	data := []record.FieldSet{
		{Fields: []record.Field{{Name: "id", Value: "1"}}, Hash: "h1"},
		{Fields: []record.Field{{Name: "id", Value: "2"}}, Hash: ""},
	}

	n, err := r.StoreCurrent(context.Background(), client, data, pkFields)
	if err != nil {
		t.Fatalf("store current: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row inserted, got %d", n)
	}

	currentTable, _ := r.tableNames(client)
	got, err := r.queryRows(context.Background(), "SELECT pk_value, field_values, hash, validation_messages FROM "+currentTable)
	if err != nil {
		t.Fatalf("query current table: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "h1" {
		t.Fatalf("expected only the hashed record in current, got %+v", got)
	}
}
