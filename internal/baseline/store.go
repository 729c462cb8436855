// Package baseline implements the pluggable baseline store: three
// interchangeable backends (filesystem, object bucket, relational database)
// behind one contract, all reached through the streaming NDJSON abstraction
// (internal/stream) or SQL.
package baseline

import (
	"context"

	"deltasync/internal/delta"
	"deltasync/internal/record"
)

// ClientID namespaces all baseline data by logical tenant.
type ClientID string

// Sanitized returns c with every character outside [a-zA-Z0-9] replaced by
// an underscore, the form used to build SQL-safe per-client identifiers.
func (c ClientID) Sanitized() string {
	return sanitizeIdentifier(string(c))
}

// Store is the uniform contract every backend implements.
type Store interface {
	// Initialize prepares the backend for use: creates directories,
	// constructs the bucket client (without contacting the bucket), or
	// opens and pings the database connection pool. Per-client tables are
	// created lazily on first use; the history table is created by
	// history.NewStore. It is safe to call more than once.
	Initialize(ctx context.Context) error

	// FetchPrevious returns the previous key+hash projection for client.
	// When limitTo is non-nil, backends that can filter server-side do so;
	// filesystem/object-bucket backends ignore it and the caller filters
	// after read.
	FetchPrevious(ctx context.Context, client ClientID, limitTo map[string]struct{}) ([]record.FieldSet, error)

	// UpdatePrevious atomically replaces the previous baseline with data
	// and returns the number of records written. failureCount is consumed
	// only by the relational backend (see Relational.UpdatePrevious).
	UpdatePrevious(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string, failureCount int) (int, error)

	// Backend names the concrete implementation, for logging/metrics.
	Backend() string
}

// RelationalCapable is implemented only by Relational. The
// orchestrator type-asserts for it to decide whether to run the
// storeCurrent+fetchDelta path (relational) or the fetch-then-SetDiff path
// (filesystem/object bucket).
type RelationalCapable interface {
	Store

	// StoreCurrent stages this cycle's current projection into the
	// client's current table.
	StoreCurrent(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string) (int, error)

	// FetchDelta computes Added/Updated/Removed with three SQL statements
	// against the client's current/previous tables.
	FetchDelta(ctx context.Context, client ClientID, pkFields []string) (delta.Delta, error)
}
