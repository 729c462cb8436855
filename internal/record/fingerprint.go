package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"deltasync/internal/deltaerr"
)

// MaxDepth bounds recursion when serializing nested values, both here and
// in the validator. Values nested deeper than this fail with
// deltaerr.DepthExceeded.
const MaxDepth = 10

// Fingerprint computes a fixed-width hex SHA-256 digest over the ordered
// field values of fs. When sort is true, fields are ordered ascending by
// name before serialization; otherwise fs's natural order is used. Field
// names never enter the digest, only values, and only their order.
func Fingerprint(fs FieldSet, sortFields bool) (string, error) {
	fields := fs.Fields
	if sortFields {
		fields = append([]Field(nil), fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		s, err := serializeValue(f.Value, 0)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// serializeValue renders v in the canonical textual form used for
// fingerprinting: primitives via their canonical form, null/undefined as
// empty string, sequences joined by ",", mappings sorted by key and joined
// as "k:v" pairs separated by ";".
func serializeValue(v Value, depth int) (string, error) {
	if depth > MaxDepth {
		return "", deltaerr.Newf(deltaerr.DepthExceeded, "value nested deeper than %d levels", MaxDepth)
	}

	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case []Value:
		elems := make([]string, len(val))
		for i, e := range val {
			s, err := serializeValue(e, depth+1)
			if err != nil {
				return "", err
			}
			elems[i] = s
		}
		return strings.Join(elems, ","), nil
	case map[string]Value:
		return serializeMap(val, depth)
	default:
		return fmt.Sprint(val), nil
	}
}

func serializeMap(m map[string]Value, depth int) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		s, err := serializeValue(m[k], depth+1)
		if err != nil {
			return "", err
		}
		pairs[i] = k + ":" + s
	}
	return strings.Join(pairs, ";"), nil
}
