// Package validate implements the two-layer field/row validator described
// by the canonical schema: per-field checks against a FieldDefinition, and
// a row pass that writes a messages-by-field-name map onto a record.
//
// Validation is never fatal to a cycle, invalid rows are carried forward
// without a hash; internal/repair restores or drops their baseline entry in
// the same cycle, so they are detected again on the next one.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"deltasync/internal/deltaerr"
	"deltasync/internal/record"
)

// Field validates value against def, with access to the full row for
// row-aware custom predicates. It returns nil when the value is valid, or
// an error describing the first violation found.
func Field(def record.FieldDefinition, value record.Value, row *record.FieldSet) error {
	if value == nil {
		if def.Required && def.Default == nil {
			return fmt.Errorf("%q is required", def.Name)
		}
		return nil
	}

	if err := checkType(def, value); err != nil {
		return err
	}
	if err := checkRestrictions(def, value, row); err != nil {
		return err
	}
	return nil
}

func checkType(def record.FieldDefinition, value record.Value) error {
	// Compound types are recursed by the checkDepth walk, not
	// primitive-checked here.
	if def.Type == record.FieldTypeObject || def.Type == record.FieldTypeArray {
		return checkDepth(value, 0)
	}

	switch def.Type {
	case record.FieldTypeString, record.FieldTypeSingleChoice:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%q must be a string", def.Name)
		}
	case record.FieldTypeMultiChoice:
		if _, ok := value.([]record.Value); !ok {
			return fmt.Errorf("%q must be a list", def.Name)
		}
	case record.FieldTypeNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("%q must be a number", def.Name)
		}
	case record.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%q must be a boolean", def.Name)
		}
	case record.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%q must be a date string", def.Name)
		}
		if !looksLikeDate(s) {
			return fmt.Errorf("%q is not a recognizable date", def.Name)
		}
	case record.FieldTypeEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%q must be a string", def.Name)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Errorf("%q is not a valid email address", def.Name)
		}
	case record.FieldTypeURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%q must be a string", def.Name)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%q is not a valid URL", def.Name)
		}
	}
	return nil
}

func checkRestrictions(def record.FieldDefinition, value record.Value, row *record.FieldSet) error {
	for _, r := range def.Restrictions {
		if err := checkRestriction(def, r, value, row); err != nil {
			return err
		}
	}
	return nil
}

func checkRestriction(def record.FieldDefinition, r record.Restriction, value record.Value, row *record.FieldSet) error {
	if s, ok := value.(string); ok {
		if r.MinLength != nil && len(s) < *r.MinLength {
			return fmt.Errorf("%q must be at least %d characters", def.Name, *r.MinLength)
		}
		if r.MaxLength != nil && len(s) > *r.MaxLength {
			return fmt.Errorf("%q must be at most %d characters", def.Name, *r.MaxLength)
		}
		if r.Pattern != nil && !r.Pattern.MatchString(s) {
			return fmt.Errorf("%q does not match the required pattern", def.Name)
		}
		if len(r.Choices) > 0 && !choiceMatch(s, r.Choices, r.CaseSensitive) {
			return fmt.Errorf("%q must be one of %v", def.Name, r.Choices)
		}
	}

	if n, ok := numericValue(value); ok {
		if r.MinValue != nil && n < *r.MinValue {
			return fmt.Errorf("%q must be >= %v", def.Name, *r.MinValue)
		}
		if r.MaxValue != nil && n > *r.MaxValue {
			return fmt.Errorf("%q must be <= %v", def.Name, *r.MaxValue)
		}
	}

	if r.Predicate != nil {
		if err := r.Predicate(value, row); err != nil {
			return fmt.Errorf("%q: %w", def.Name, err)
		}
	}
	return nil
}

func choiceMatch(v string, choices []string, caseSensitive bool) bool {
	for _, c := range choices {
		if caseSensitive {
			if v == c {
				return true
			}
		} else if strings.EqualFold(v, c) {
			return true
		}
	}
	return false
}

func numericValue(v record.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func looksLikeDate(s string) bool {
	// Accept RFC3339 and plain "YYYY-MM-DD" without pulling in a date
	// parsing library, every pack repo that needs this formats/parses
	// through stdlib time.Parse against a small set of known layouts.
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05Z07:00"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// checkDepth walks a compound value (map/slice) to enforce the same depth
// bound the fingerprinter uses, so a record that would fail fingerprinting
// fails validation with a clear message first.
func checkDepth(v record.Value, depth int) error {
	if depth > record.MaxDepth {
		return deltaerr.Newf(deltaerr.DepthExceeded, "value nested deeper than %d levels", record.MaxDepth)
	}
	switch val := v.(type) {
	case []record.Value:
		for _, e := range val {
			if err := checkDepth(e, depth+1); err != nil {
				return err
			}
		}
	case map[string]record.Value:
		for _, e := range val {
			if err := checkDepth(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Row runs Field over every definition in schema against fs, writing the
// resulting messages onto fs.ValidationMessages. fs is valid iff that map
// ends up empty.
func Row(schema record.Schema, fs *record.FieldSet) {
	messages := map[string][]string{}

	for _, def := range schema.Fields {
		value, present := fs.Get(def.Name)
		if !present && def.Default != nil {
			value = def.Default
			fs.Fields = append(fs.Fields, record.Field{Name: def.Name, Value: def.Default})
		}
		if err := Field(def, value, fs); err != nil {
			messages[def.Name] = append(messages[def.Name], err.Error())
		}
	}

	fs.ValidationMessages = messages
}
