// Package record holds the canonical record/fingerprint model: Field,
// FieldSet, Schema and FieldDefinition, plus the fixed-width fingerprint and
// key+hash projection that everything above the Delta Engine operates on.
package record

import "regexp"

// Value is the dynamic type carried by a Field. It is one of: string,
// float64, bool, nil, []Value, or map[string]Value, mirroring the JSON
// data model the stream codec serializes.
type Value = any

// Field is a single {name -> value} entry in a record.
type Field struct {
	Name  string
	Value Value
}

// FieldSet is one row flowing through the pipeline. Field order is
// semantically meaningful for fingerprinting unless the caller requests
// sorting. ValidationMessages and Hash are mutually exclusive per
// invariant 2: a FieldSet with non-empty ValidationMessages must not carry
// a Hash.
type FieldSet struct {
	Fields             []Field
	ValidationMessages map[string][]string
	Hash               string
}

// Valid reports whether fs carries no validation messages.
func (fs FieldSet) Valid() bool {
	return len(fs.ValidationMessages) == 0
}

// Get returns the value of the named field and whether it was present.
func (fs FieldSet) Get(name string) (Value, bool) {
	for _, f := range fs.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FieldType is the semantic type of a FieldDefinition.
type FieldType string

const (
	FieldTypeString       FieldType = "string"
	FieldTypeNumber       FieldType = "number"
	FieldTypeBoolean      FieldType = "boolean"
	FieldTypeDate         FieldType = "date"
	FieldTypeEmail        FieldType = "email"
	FieldTypeURL          FieldType = "url"
	FieldTypeSingleChoice FieldType = "single-choice"
	FieldTypeMultiChoice  FieldType = "multi-choice"
	FieldTypeObject       FieldType = "object"
	FieldTypeArray        FieldType = "array"
)

// Restriction is one constraint attached to a FieldDefinition. Zero-value
// fields (nil pointers, empty slices) mean "not restricted this way".
type Restriction struct {
	MinLength     *int
	MaxLength     *int
	MinValue      *float64
	MaxValue      *float64
	Pattern       *regexp.Regexp
	Choices       []string
	CaseSensitive bool
	// Predicate receives the field value and the entire row, so custom
	// checks can be cross-field.
	Predicate func(value Value, row *FieldSet) error
}

// FieldDefinition describes one column of a Schema.
type FieldDefinition struct {
	Name         string
	Type         FieldType
	Required     bool
	Default      Value
	PrimaryKey   bool
	Restrictions []Restriction
}

// Schema is an ordered sequence of FieldDefinition.
type Schema struct {
	Fields []FieldDefinition
}

// PrimaryKeyFields returns the ordered names of fields flagged PrimaryKey.
// The primary key may be composite or, per spec, empty.
func (s Schema) PrimaryKeyFields() []string {
	var pk []string
	for _, f := range s.Fields {
		if f.PrimaryKey {
			pk = append(pk, f.Name)
		}
	}
	return pk
}

// FieldNames returns every field name in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the definition for name, if any.
func (s Schema) Lookup(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}
