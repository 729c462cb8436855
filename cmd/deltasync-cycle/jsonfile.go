package main

import (
	"context"
	"encoding/json"
	"os"

	"deltasync/internal/deltaerr"
	"deltasync/internal/orchestrator"
	"deltasync/internal/record"
)

// JSONFileSource reads a JSON array of objects from a local file, the
// example Source grounded on notes' internal/etl/sources/jsonfile.go.
type JSONFileSource struct {
	Path string
}

var _ orchestrator.Source = JSONFileSource{}

func (s JSONFileSource) FetchRaw(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.Cancelled, "fetch raw", err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "read json file", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, deltaerr.Wrap(deltaerr.ParseError, "parse json file", err)
	}
	return raw, nil
}

// JSONFileMapper turns the raw []map[string]any payload into FieldSets
// against a caller-supplied schema. Field order in each record follows
// schema order; keys absent from a row map to nil.
type JSONFileMapper struct {
	Schema record.Schema
}

var _ orchestrator.Mapper = JSONFileMapper{}

func (m JSONFileMapper) Map(ctx context.Context, raw any) (record.Schema, []record.FieldSet, error) {
	if err := ctx.Err(); err != nil {
		return record.Schema{}, nil, deltaerr.Wrap(deltaerr.Cancelled, "map", err)
	}
	rows, ok := raw.([]map[string]any)
	if !ok {
		return record.Schema{}, nil, deltaerr.New(deltaerr.ParseError, "json file mapper: expected []map[string]any")
	}

	names := m.Schema.FieldNames()
	out := make([]record.FieldSet, len(rows))
	for i, row := range rows {
		fields := make([]record.Field, len(names))
		for j, name := range names {
			fields[j] = record.Field{Name: name, Value: row[name]}
		}
		out[i] = record.FieldSet{Fields: fields}
	}
	return m.Schema, out, nil
}
