// Package dsn resolves database connection strings and object-store region
// settings from a delta sync configuration, keeping that resolution logic
// out of the hot path of the baseline backends themselves.
package dsn

import "deltasync/internal/envkit"

// ResolveRegion picks the first non-empty of: explicit, an env var named
// "{prefix}_REGION", the bare "REGION" env var, then fallback. Grounded on
// animus-go's objectstore.ConfigFromEnv resolution order. Both environment
// variables are read through envkit on every call.
func ResolveRegion(explicit, prefix, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if prefix != "" {
		if v := envkit.String(prefix+"_REGION", ""); v != "" {
			return v
		}
	}
	if v := envkit.String("REGION", ""); v != "" {
		return v
	}
	return fallback
}
