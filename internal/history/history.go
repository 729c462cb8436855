// Package history records a short audit trail of delta computations for
// clients on a relational baseline, grounded on notes'
// internal/storage/etl.go run-log CRUD: parameterized insert/select,
// google/uuid-generated IDs, most-recent-first with a bounded LIMIT.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"deltasync/internal/baseline"
	"deltasync/internal/deltaerr"
)

// Metadata is free-form detail about one cycle's delta computation,
// serialized to JSON in the metadata column.
type Metadata struct {
	ComputationTimeMs int64
	TotalCurrent      int
	TotalPrevious     int
	Notes             []string
}

// Entry is one row of the delta_history table.
type Entry struct {
	ID           string
	ClientID     baseline.ClientID
	AddedCount   int
	UpdatedCount int
	RemovedCount int
	Metadata     Metadata
	CreatedAt    time.Time
}

// Store persists Entry rows. It shares the sql.DB used by a Relational
// baseline store, history is only meaningful when the baseline is
// relational; the filesystem and object-bucket backends carry no audit
// retention beyond the current baseline file itself.
type Store struct {
	db *sql.DB
}

// NewStore wraps db for history persistence and creates the delta_history
// table if it does not already exist.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS delta_history (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		added_count INTEGER NOT NULL DEFAULT 0,
		updated_count INTEGER NOT NULL DEFAULT 0,
		removed_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "create delta_history table", err)
	}
	return nil
}

// Record inserts e, generating an ID and timestamp if unset.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "encode history metadata", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO delta_history (id, client_id, added_count, updated_count, removed_count, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.ClientID), e.AddedCount, e.UpdatedCount, e.RemovedCount, string(meta), e.CreatedAt,
	)
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "insert history entry", err)
	}
	return nil
}

// Recent returns the most recent limit entries for client, newest first.
func (s *Store) Recent(ctx context.Context, client baseline.ClientID, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, added_count, updated_count, removed_count, metadata, created_at
		 FROM delta_history WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		string(client), limit,
	)
	if err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "read history", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var clientID, meta string
		if err := rows.Scan(&e.ID, &clientID, &e.AddedCount, &e.UpdatedCount, &e.RemovedCount, &meta, &e.CreatedAt); err != nil {
			return nil, deltaerr.Wrap(deltaerr.IO, "scan history row", err)
		}
		e.ClientID = baseline.ClientID(clientID)
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, deltaerr.Wrap(deltaerr.ParseError, "decode history metadata", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "read history", err)
	}
	return out, nil
}
