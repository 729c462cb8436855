package baseline

import "strings"

// sanitizeIdentifier replaces every rune outside [a-zA-Z0-9] with an
// underscore, producing a SQL-safe identifier fragment from a clientId.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
