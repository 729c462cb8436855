package baseline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"deltasync/internal/delta"
	"deltasync/internal/deltaerr"
	"deltasync/internal/dsn"
	"deltasync/internal/record"
)

// RelationalConfig configures a Relational baseline store. Filename is used
// only when Type is "sqlite", where it names the database file directly.
type RelationalConfig struct {
	Type     string // "sqlite" | "mysql" | "postgres"
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Filename string
	SSL      bool
	Logging  bool
}

// Relational stores each client's current and previous datasets as rows in
// per-client tables, and computes deltas with SQL joins rather than an
// in-memory hash-set pass, the RelationalDiff strategy. Grounded on
// notes' internal/dbclient (driver selection, DSN construction) and
// internal/storage (migration-on-open, connection pool sizing).
type Relational struct {
	Config RelationalConfig

	db *sql.DB
}

var _ Store = (*Relational)(nil)
var _ RelationalCapable = (*Relational)(nil)

func (r *Relational) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return deltaerr.Wrap(deltaerr.Cancelled, "initialize relational baseline", err)
	}

	cfg := dsn.RelationalConfig{
		Driver:   r.Config.Type,
		Host:     r.Config.Host,
		Port:     r.Config.Port,
		Username: r.Config.Username,
		Password: r.Config.Password,
		Database: r.Config.Database,
	}
	if r.Config.SSL {
		cfg.SSLMode = "require"
	}
	if r.Config.Type == "sqlite" {
		cfg.Host = r.Config.Filename
	}

	driverName, source, err := dsn.Build(cfg)
	if err != nil {
		return deltaerr.Wrap(deltaerr.ConfigError, "relational baseline dsn", err)
	}

	db, err := sql.Open(driverName, source)
	if err != nil {
		return deltaerr.Wrap(deltaerr.ConfigError, "open relational baseline", err)
	}
	if driverName == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent cycles.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return deltaerr.Wrap(deltaerr.IO, "ping relational baseline", err)
	}

	r.db = db
	return nil
}

func (r *Relational) Backend() string { return "relational" }

func (r *Relational) tableNames(client ClientID) (current, previous string) {
	base := "client_" + client.Sanitized()
	return base + "_current", base + "_previous"
}

// ensureTables creates a client's current/previous tables on first use.
// pkFields being empty is rejected here: a relational baseline needs at
// least one primary key column to key its rows on.
func (r *Relational) ensureTables(ctx context.Context, client ClientID, pkFields []string) error {
	if r.db == nil {
		return deltaerr.New(deltaerr.NotInitialized, "relational baseline not initialized")
	}
	if len(pkFields) == 0 {
		return deltaerr.New(deltaerr.ConfigError, "relational baseline requires at least one primary key field")
	}

	current, previous := r.tableNames(client)
	ddl := `CREATE TABLE IF NOT EXISTS %s (
		pk_value TEXT PRIMARY KEY,
		field_values TEXT NOT NULL,
		hash TEXT NOT NULL,
		validation_messages TEXT
	)`
	for _, table := range []string{current, previous} {
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf(ddl, table)); err != nil {
			return deltaerr.Wrap(deltaerr.IO, "create baseline table "+table, err)
		}
	}
	return nil
}

func (r *Relational) FetchPrevious(ctx context.Context, client ClientID, limitTo map[string]struct{}) ([]record.FieldSet, error) {
	if r.db == nil {
		return nil, deltaerr.New(deltaerr.NotInitialized, "relational baseline not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.Cancelled, "fetch previous", err)
	}

	_, previous := r.tableNames(client)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT pk_value, field_values, hash, validation_messages FROM %s", previous))
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, deltaerr.Wrap(deltaerr.IO, "read previous baseline", err)
	}
	defer rows.Close()

	var out []record.FieldSet
	for rows.Next() {
		fs, pk, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		if limitTo != nil {
			if _, ok := limitTo[pk]; !ok {
				continue
			}
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "read previous baseline", err)
	}
	return out, nil
}

// UpdatePrevious commits the outcome of a cycle. With no failures, previous
// becomes an exact copy of current (nothing was repaired, so current is
// already the correct baseline). With failures, repair.Repair has already
// reconciled data against the old previous, and both previous and current
// must end the cycle equal to that reconciled set, otherwise a
// failed-and-restored record would still read as "changed" out of current
// on the next cycle even though nothing new happened to it.
func (r *Relational) UpdatePrevious(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string, failureCount int) (int, error) {
	if err := r.ensureTables(ctx, client, pkFields); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.Cancelled, "update previous", err)
	}

	current, previous := r.tableNames(client)

	if failureCount == 0 {
		return r.promoteCurrentToPrevious(ctx, current, previous)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "begin transaction", err)
	}
	defer tx.Rollback()

	var n int
	for _, table := range []string{previous, current} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return 0, deltaerr.Wrap(deltaerr.IO, "clear baseline table "+table, err)
		}
		inserted, err := insertRows(ctx, tx, table, data, pkFields)
		if err != nil {
			return 0, err
		}
		n = inserted
	}

	if err := tx.Commit(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "commit baseline tables", err)
	}
	return n, nil
}

// promoteCurrentToPrevious truncates previous and refills it from current's
// own rows, rather than re-inserting data, since current already holds
// exactly what a no-failure cycle wants previous to become.
func (r *Relational) promoteCurrentToPrevious(ctx context.Context, current, previous string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "begin transaction", err)
	}
	defer tx.Rollback()

	n, err := copyTableInto(ctx, tx, current, previous)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "commit baseline table "+previous, err)
	}
	return n, nil
}

// copyTableInto truncates dst and refills it with src's own rows, within tx.
func copyTableInto(ctx context.Context, tx *sql.Tx, src, dst string) (int, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", dst)); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "clear baseline table "+dst, err)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (pk_value, field_values, hash, validation_messages) "+
			"SELECT pk_value, field_values, hash, validation_messages FROM %s",
		dst, src))
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "copy baseline table "+src+" into "+dst, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "copy baseline table "+src+" into "+dst, err)
	}
	return int(n), nil
}

// StoreCurrent stages this cycle's current projection. Before overwriting
// current it first promotes current's outgoing rows into previous ((a)
// truncate previous, (b) copy current into previous, (c) truncate current),
// so a process cancellation between storeCurrent and updatePrevious still
// leaves previous holding a coherent snapshot: the next cycle's
// storeCurrent will already have promoted it, so re-pulling the same
// source data yields a no-op delta instead of replaying every row added.
func (r *Relational) StoreCurrent(ctx context.Context, client ClientID, data []record.FieldSet, pkFields []string) (int, error) {
	if err := r.ensureTables(ctx, client, pkFields); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.Cancelled, "store current", err)
	}

	current, previous := r.tableNames(client)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := copyTableInto(ctx, tx, current, previous); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", current)); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "clear baseline table "+current, err)
	}
	n, err := insertRows(ctx, tx, current, data, pkFields)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, deltaerr.Wrap(deltaerr.IO, "commit baseline table "+current, err)
	}
	return n, nil
}

// insertRows inserts one row per record in data into table, within tx,
// skipping any record whose hash is empty. A hash-less record failed
// validation (Step 3 of the cycle never fingerprints it), and a baseline
// table must never carry one, mirroring the c.Hash == "" / p.Hash == ""
// guards SetDiffEngine applies in memory, so the two delta engines stay
// equivalent. Returns the number of rows actually inserted.
func insertRows(ctx context.Context, tx *sql.Tx, table string, data []record.FieldSet, pkFields []string) (int, error) {
	inserted := 0
	for _, fs := range data {
		if fs.Hash == "" {
			continue
		}
		pk, err := record.PrimaryKeyString(fs, pkFields)
		if err != nil {
			return 0, err
		}
		fieldValues, err := json.Marshal(fs.Fields)
		if err != nil {
			return 0, deltaerr.Wrap(deltaerr.IO, "encode field values", err)
		}
		var validation any
		if len(fs.ValidationMessages) > 0 {
			b, err := json.Marshal(fs.ValidationMessages)
			if err != nil {
				return 0, deltaerr.Wrap(deltaerr.IO, "encode validation messages", err)
			}
			validation = string(b)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (pk_value, field_values, hash, validation_messages) VALUES (?, ?, ?, ?)", table),
			pk, string(fieldValues), fs.Hash, validation,
		)
		if err != nil {
			return 0, deltaerr.Wrap(deltaerr.IO, "insert baseline row", err)
		}
		inserted++
	}
	return inserted, nil
}

// FetchDelta computes Added/Updated/Removed with three SQL statements
// against the client's current/previous tables rather than pulling both
// sides into memory and diffing hash sets, the RelationalDiff strategy.
func (r *Relational) FetchDelta(ctx context.Context, client ClientID, pkFields []string) (delta.Delta, error) {
	if r.db == nil {
		return delta.Delta{}, deltaerr.New(deltaerr.NotInitialized, "relational baseline not initialized")
	}
	if err := ctx.Err(); err != nil {
		return delta.Delta{}, deltaerr.Wrap(deltaerr.Cancelled, "fetch delta", err)
	}

	current, previous := r.tableNames(client)

	added, err := r.queryRows(ctx, fmt.Sprintf(
		"SELECT c.pk_value, c.field_values, c.hash, c.validation_messages FROM %s c "+
			"WHERE NOT EXISTS (SELECT 1 FROM %s p WHERE p.pk_value = c.pk_value)", current, previous))
	if err != nil {
		return delta.Delta{}, err
	}

	removed, err := r.queryRows(ctx, fmt.Sprintf(
		"SELECT p.pk_value, p.field_values, p.hash, p.validation_messages FROM %s p "+
			"WHERE NOT EXISTS (SELECT 1 FROM %s c WHERE c.pk_value = p.pk_value)", previous, current))
	if err != nil {
		return delta.Delta{}, err
	}

	updated, err := r.queryRows(ctx, fmt.Sprintf(
		"SELECT c.pk_value, c.field_values, c.hash, c.validation_messages FROM %s c "+
			"JOIN %s p ON p.pk_value = c.pk_value WHERE p.hash <> c.hash", current, previous))
	if err != nil {
		return delta.Delta{}, err
	}

	return delta.Delta{Added: added, Updated: updated, Removed: removed}, nil
}

func (r *Relational) queryRows(ctx context.Context, query string) ([]record.FieldSet, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, deltaerr.Wrap(deltaerr.IO, "compute relational delta", err)
	}
	defer rows.Close()

	var out []record.FieldSet
	for rows.Next() {
		fs, _, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, deltaerr.Wrap(deltaerr.IO, "compute relational delta", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (record.FieldSet, string, error) {
	var pk, fieldValues, hash string
	var validation sql.NullString
	if err := rows.Scan(&pk, &fieldValues, &hash, &validation); err != nil {
		return record.FieldSet{}, "", deltaerr.Wrap(deltaerr.IO, "scan baseline row", err)
	}
	var fields []record.Field
	if err := json.Unmarshal([]byte(fieldValues), &fields); err != nil {
		return record.FieldSet{}, "", deltaerr.Wrap(deltaerr.ParseError, "decode baseline row", err)
	}
	fs := record.FieldSet{Fields: fields, Hash: hash}
	if validation.Valid && validation.String != "" {
		var msgs map[string][]string
		if err := json.Unmarshal([]byte(validation.String), &msgs); err != nil {
			return record.FieldSet{}, "", deltaerr.Wrap(deltaerr.ParseError, "decode validation messages", err)
		}
		fs.ValidationMessages = msgs
	}
	return fs, pk, nil
}

// isMissingTable reports whether err looks like a "no such table" /
// "doesn't exist" / "does not exist" error across sqlite, mysql, and
// postgres drivers, so a never-synced client reads as an empty baseline.
func isMissingTable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "does not exist")
}

// DB exposes the underlying connection so a history.Store can share it
// rather than opening a second pool against the same database.
func (r *Relational) DB() *sql.DB {
	return r.db
}

func (r *Relational) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
