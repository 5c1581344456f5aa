// Package jobstore is the durable persistence layer: jobs, artifacts,
// transcripts, and upload sessions, backed by a single modernc.org/sqlite
// file, a pure-Go, cgo-free driver. The migration/query shape follows the
// conventional database/sql + embedded-migrations idiom.
package jobstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB wraps the sqlite handle and implements every query surface consumed by
// the scheduler, pipeline coordinator, httpapi, and the upload.Repository
// interface.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and applies
// any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("jobstore: opening sqlite database: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoids SQLITE_BUSY churn

	db := &DB{sql: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("jobstore: creating migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("jobstore: reading embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var already int
		if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&already); err != nil {
			return fmt.Errorf("jobstore: checking migration state for %s: %w", name, err)
		}
		if already > 0 {
			continue
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("jobstore: reading migration %s: %w", name, err)
		}
		tx, err := db.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("jobstore: beginning migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("jobstore: applying migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, datetime('now'))`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("jobstore: recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("jobstore: committing migration %s: %w", name, err)
		}
	}
	return nil
}
