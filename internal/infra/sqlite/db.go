// Package sqlite provides the SQLite-backed implementation of domain.Store.
//
// One database file is opened through two pools:
//   - writer: a single connection, every transaction BEGIN IMMEDIATE, so
//     mutations are serialized one writer at a time
//   - reader: several connections in WAL mode; readers never block the
//     writer and always see the last committed snapshot
//
// Balance and progress writes additionally carry a version guard, so a
// write that races another one fails with domain.ErrConflict instead of
// silently overwriting it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/commonground/progression/internal/domain"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// FileName is the database file created inside the data directory.
const FileName = "progression.db"

// Options tunes the connection pools.
type Options struct {
	BusyTimeout  time.Duration // how long a connection waits on a lock (default 5s)
	MaxReadConns int           // reader pool size (default 8)
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxReadConns: 8,
	}
}

// DB is the progression store.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

var _ domain.Store = (*DB)(nil)

// Open opens (or creates) the database in dir with default options.
func Open(dir string) (*DB, error) {
	return OpenWithOptions(dir, DefaultOptions())
}

// OpenWithOptions opens (or creates) the database in dir and applies
// all migrations.
func OpenWithOptions(dir string, opts Options) (*DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if opts.MaxReadConns <= 0 {
		opts.MaxReadConns = DefaultOptions().MaxReadConns
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	writer, err := sql.Open("sqlite", dsn(path, opts, true))
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	db := &DB{writer: writer, path: path}
	if err := db.migrate(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn(path, opts, false))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(opts.MaxReadConns)
	reader.SetMaxIdleConns(opts.MaxReadConns)
	db.reader = reader

	return db, nil
}

// Close releases both pools.
func (db *DB) Close() error {
	var rerr error
	if db.reader != nil {
		rerr = db.reader.Close()
	}
	werr := db.writer.Close()
	return errors.Join(rerr, werr)
}

// Path returns the database file location.
func (db *DB) Path() string { return db.path }

// Ping checks that both pools can reach the file.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return err
	}
	return db.reader.PingContext(ctx)
}

func dsn(path string, opts Options, writer bool) string {
	params := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds())}
	if writer {
		params = append(params,
			"_pragma=journal_mode(WAL)",
			"_pragma=synchronous(NORMAL)",
			"_txlock=immediate",
		)
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.writer.Exec(stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// Update runs fn inside one write transaction. Lock contention surfaces as
// domain.ErrConflict so callers can retry the whole unit.
func (db *DB) Update(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	sqlTx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return fmt.Errorf("begin tx: %w", domain.ErrConflict)
		}
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("%v: %w", err, domain.ErrConflict)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return fmt.Errorf("commit: %w", domain.ErrConflict)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tx is a write transaction handed to Update callbacks.
type Tx struct {
	tx *sql.Tx
}

var _ domain.StoreTx = (*Tx)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ─── Error Classification ───────────────────────────────────────────────────

func isUniqueError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return isUniqueViolation(sqliteErr.Code())
}

// isUniqueViolation reports whether an extended result code is a UNIQUE or
// PRIMARY KEY violation. CHECK and NOT NULL failures share the primary
// SQLITE_CONSTRAINT code but are not duplicates.
func isUniqueViolation(code int) bool {
	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return isBusyCode(sqliteErr.Code())
}

// isBusyCode matches SQLITE_BUSY and SQLITE_LOCKED with any extended code.
func isBusyCode(code int) bool {
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// ─── Encoding Helpers ───────────────────────────────────────────────────────

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitArg(limit int) int {
	if limit <= 0 {
		return -1 // SQLite: no limit
	}
	return limit
}
