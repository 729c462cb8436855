package record

import (
	"strings"

	"deltasync/internal/deltaerr"
)

// Reduce projects fs onto the fields named in pkFields, preserving the
// order fs's fields were encountered in (not pkFields' order), and carries
// Hash and ValidationMessages through unchanged. This is the representation
// the baseline store sees: full field payloads never reach it.
func Reduce(fs FieldSet, pkFields []string) FieldSet {
	want := make(map[string]struct{}, len(pkFields))
	for _, k := range pkFields {
		want[k] = struct{}{}
	}

	var fields []Field
	for _, f := range fs.Fields {
		if _, ok := want[f.Name]; ok {
			fields = append(fields, f)
		}
	}

	return FieldSet{
		Fields:             fields,
		ValidationMessages: fs.ValidationMessages,
		Hash:               fs.Hash,
	}
}

// PrimaryKeyString joins the values of pkFields (in pkFields order) with
// "|" into the reversible "pk" column used by the relational delta engine.
// Per spec open question (b), a "|" inside a primary-key value would make
// reconstruction ambiguous, so it is rejected here rather than encoded
// around.
func PrimaryKeyString(fs FieldSet, pkFields []string) (string, error) {
	parts := make([]string, len(pkFields))
	for i, k := range pkFields {
		v, _ := fs.Get(k)
		s, err := serializeValue(v, 0)
		if err != nil {
			return "", err
		}
		if strings.Contains(s, "|") {
			return "", deltaerr.Newf(deltaerr.ConfigError, "primary key field %q contains the reserved separator %q", k, "|")
		}
		parts[i] = s
	}
	return strings.Join(parts, "|"), nil
}

// SplitPrimaryKey reconstructs the pkFields -> value fields of a reduced
// record from its "pk" string, the reverse of PrimaryKeyString.
func SplitPrimaryKey(pk string, pkFields []string) []Field {
	if len(pkFields) == 0 {
		return nil
	}
	parts := strings.Split(pk, "|")
	fields := make([]Field, 0, len(pkFields))
	for i, name := range pkFields {
		var v Value
		if i < len(parts) {
			v = parts[i]
		}
		fields = append(fields, Field{Name: name, Value: v})
	}
	return fields
}
