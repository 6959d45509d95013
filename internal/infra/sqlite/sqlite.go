// Package sqlite is the durable store for the reciprocity economy: actors,
// the append-only event log, the transaction ledger and distributions.
//
// The database is opened with a single connection. Every unit of work runs
// in one SQLite transaction on that connection, so units of work are
// serialized: a balance read and the debit that depends on it can never
// interleave with another writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/coomunity/ayni/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "ayni.db"

// DB wraps the SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the database in dir and applies migrations.
// An empty dir opens an in-memory database.
func Open(dir string) (*DB, error) {
	dsn := ":memory:"
	path := ""
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		path = filepath.Join(dir, FileName)
		dsn = path
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// One connection: SQLite has one writer, and pragmas are per connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{db: sqlDB, path: path}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Path returns the database file path, empty for in-memory databases.
func (db *DB) Path() string { return db.path }

// Ping checks the connection. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// ─── Migrations ─────────────────────────────────────────────────────────────

// migrate applies each migration group whose index is above user_version.
func (db *DB) migrate() error {
	var version int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	groups := [][]string{EconomyMigrations()}
	for i := version; i < len(groups); i++ {
		tx, err := db.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range groups[i] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// ─── Units of Work ──────────────────────────────────────────────────────────

// Update runs fn in one read-write transaction. It commits only when fn
// returns nil; any error or context cancellation rolls everything back.
func (db *DB) Update(ctx context.Context, fn func(domain.UnitOfWork) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// View runs fn in a transaction that is always rolled back, giving fn a
// consistent snapshot.
func (db *DB) View(ctx context.Context, fn func(domain.UnitOfWork) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	return fn(&Tx{tx: tx})
}

// Tx is the unit-of-work view over one SQLite transaction.
// All reads and writes of a unit of work must go through it.
type Tx struct {
	tx *sql.Tx
}

var _ domain.UnitOfWork = (*Tx)(nil)
