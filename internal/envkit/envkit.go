// Package envkit is a small set of environment-variable readers, grounded
// on animus-go's internal/platform/env package: read a value, fall back to
// a default, and for typed readers surface a parse error instead of
// silently ignoring a malformed override.
package envkit

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// String returns the value of key, or fallback when unset or empty.
func String(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Bool parses the value of key as a bool, or returns fallback when unset.
func Bool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("env %s: %w", key, err)
	}
	return b, nil
}

// Duration parses the value of key as a time.Duration, or returns fallback
// when unset.
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return d, nil
}

// Int parses the value of key as an int, or returns fallback when unset.
func Int(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return n, nil
}
