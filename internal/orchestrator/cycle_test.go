package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltasync/internal/baseline"
	"deltasync/internal/clientlock"
	"deltasync/internal/delta"
	"deltasync/internal/record"
)

func testSchema() record.Schema {
	return record.Schema{Fields: []record.FieldDefinition{
		{Name: "id", Type: record.FieldTypeString, Required: true, PrimaryKey: true},
		{Name: "name", Type: record.FieldTypeString, Required: true},
	}}
}

type fakeSource struct {
	raw any
	err error
}

func (s fakeSource) FetchRaw(ctx context.Context) (any, error) { return s.raw, s.err }

type fakeMapper struct {
	schema  record.Schema
	records []record.FieldSet
	err     error
}

func (m fakeMapper) Map(ctx context.Context, raw any) (record.Schema, []record.FieldSet, error) {
	return m.schema, m.records, m.err
}

type fakeStore struct {
	previous []record.FieldSet
	updated  []record.FieldSet
}

func (s *fakeStore) Initialize(ctx context.Context) error { return nil }
func (s *fakeStore) Backend() string                       { return "fake" }
func (s *fakeStore) FetchPrevious(ctx context.Context, client baseline.ClientID, limitTo map[string]struct{}) ([]record.FieldSet, error) {
	return s.previous, nil
}
func (s *fakeStore) UpdatePrevious(ctx context.Context, client baseline.ClientID, data []record.FieldSet, pkFields []string, failureCount int) (int, error) {
	s.updated = data
	return len(data), nil
}

var _ baseline.Store = (*fakeStore)(nil)

type fakeTarget struct {
	failPK map[string]struct{}
}

func (t *fakeTarget) PushOne(ctx context.Context, fs record.FieldSet, kind CRUDKind) (SingleResult, error) {
	v, _ := fs.Get("id")
	id, _ := v.(string)
	pk := []record.Field{{Name: "id", Value: id}}
	if _, fail := t.failPK[id]; fail {
		return SingleResult{PrimaryKey: pk, CRUD: kind, Status: PushFailure, Message: "target rejected record"}, nil
	}
	return SingleResult{PrimaryKey: pk, CRUD: kind, Status: PushSuccess}, nil
}

var _ Target = (*fakeTarget)(nil)

func recFS(id, name string) record.FieldSet {
	return record.FieldSet{Fields: []record.Field{{Name: "id", Value: id}, {Name: "name", Value: name}}}
}

func TestRunCycleHappyPath(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{
		ClientID: baseline.ClientID("acme"),
		Source:   fakeSource{raw: "raw"},
		Mapper:   fakeMapper{schema: testSchema(), records: []record.FieldSet{recFS("1", "ada"), recFS("2", "grace")}},
		Target:   &fakeTarget{},
		Store:    store,
		Engine:   delta.SetDiffEngine{},
		Lock:     &clientlock.InProcess{},
	}

	result, err := RunCycle(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Removed)
	assert.False(t, result.NoChanges)
	assert.Len(t, store.updated, 2)
}

func TestRunCycleNoChangesShortCircuits(t *testing.T) {
	previous := []record.FieldSet{recFS("1", "ada")}
	hash, err := record.Fingerprint(previous[0], false)
	require.NoError(t, err)
	previous[0].Hash = hash
	projected := record.Reduce(previous[0], []string{"id"})

	store := &fakeStore{previous: []record.FieldSet{projected}}
	cfg := Config{
		ClientID: baseline.ClientID("acme"),
		Source:   fakeSource{raw: "raw"},
		Mapper:   fakeMapper{schema: testSchema(), records: []record.FieldSet{recFS("1", "ada")}},
		Target:   &fakeTarget{},
		Store:    store,
		Engine:   delta.SetDiffEngine{},
		Lock:     &clientlock.InProcess{},
	}

	result, err := RunCycle(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, result.NoChanges)
	assert.Nil(t, store.updated)
}

func TestRunCyclePropagatesSourceError(t *testing.T) {
	cfg := Config{
		ClientID: baseline.ClientID("acme"),
		Source:   fakeSource{err: assert.AnError},
		Mapper:   fakeMapper{},
		Target:   &fakeTarget{},
		Store:    &fakeStore{},
		Engine:   delta.SetDiffEngine{},
		Lock:     &clientlock.InProcess{},
	}

	_, err := RunCycle(context.Background(), cfg)
	require.Error(t, err)
}

func TestRunCycleRelationalBackendSyncsCurrentAndPreviousOnFailure(t *testing.T) {
	store := &baseline.Relational{Config: baseline.RelationalConfig{Type: "sqlite", Filename: ":memory:"}}
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })

	client := baseline.ClientID("acme")

	// First cycle: everything pushes cleanly, seeding both tables.
	cfg := Config{
		ClientID: client,
		Source:   fakeSource{raw: "raw"},
		Mapper:   fakeMapper{schema: testSchema(), records: []record.FieldSet{recFS("1", "ada"), recFS("2", "grace")}},
		Target:   &fakeTarget{},
		Store:    store,
		Engine:   delta.SetDiffEngine{},
		Lock:     &clientlock.InProcess{},
	}
	result, err := RunCycle(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.RestoredCount)

	// Second cycle: record "1" changes but fails its push.
	cfg.Mapper = fakeMapper{schema: testSchema(), records: []record.FieldSet{recFS("1", "ada-updated"), recFS("2", "grace")}}
	cfg.Target = &fakeTarget{failPK: map[string]struct{}{"1": {}}}

	result, err = RunCycle(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RestoredCount)

	previous, err := store.FetchPrevious(context.Background(), client, nil)
	require.NoError(t, err)
	require.Len(t, previous, 2)

	d, err := store.FetchDelta(context.Background(), client, []string{"id"})
	require.NoError(t, err)
	assert.True(t, d.Empty(), "expected current and previous to be reconciled and equal after the failed push, got %+v", d)
}

func TestRunCycleRepairsFailedPush(t *testing.T) {
	prev := recFS("1", "ada")
	prevHash, err := record.Fingerprint(prev, false)
	require.NoError(t, err)
	prev.Hash = prevHash
	prevProjected := record.Reduce(prev, []string{"id"})

	store := &fakeStore{previous: []record.FieldSet{prevProjected}}
	cfg := Config{
		ClientID: baseline.ClientID("acme"),
		Source:   fakeSource{raw: "raw"},
		Mapper:   fakeMapper{schema: testSchema(), records: []record.FieldSet{recFS("1", "ada-updated")}},
		Target:   &fakeTarget{failPK: map[string]struct{}{"1": {}}},
		Store:    store,
		Engine:   delta.SetDiffEngine{},
		Lock:     &clientlock.InProcess{},
	}

	result, err := RunCycle(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RestoredCount)
	require.Len(t, store.updated, 1)
	assert.Equal(t, prevHash, store.updated[0].Hash)
}
