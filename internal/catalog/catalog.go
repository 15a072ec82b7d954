// Package catalog stores content entries and import records in a SQLite
// database opened through the pure-Go modernc.org/sqlite driver.
//
// The database runs in WAL mode so readers never wait on an import that is
// writing. Writes use short transactions; no operation holds a lock for the
// length of an import run.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// ErrNotFound is returned when an entry id is not in the catalog.
var ErrNotFound = errors.New("entry not found")

// upsertBatch bounds the rows written per transaction.
const upsertBatch = 64

const schema = `
CREATE TABLE IF NOT EXISTS content_entries (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	short_description  TEXT NOT NULL DEFAULT '',
	detail             TEXT NOT NULL DEFAULT '',
	tags               TEXT NOT NULL DEFAULT '[]',
	estimated_time_sec INTEGER,
	difficulty         TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	source_url         TEXT NOT NULL DEFAULT '',
	evidence_badge     TEXT NOT NULL DEFAULT '',
	cooldown_sec       INTEGER,
	text_hash          TEXT NOT NULL DEFAULT '',
	indexed_hash       TEXT NOT NULL DEFAULT '',
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS import_records (
	source         TEXT PRIMARY KEY,
	checksum       TEXT NOT NULL,
	ingested_at    INTEGER NOT NULL,
	schema_version INTEGER NOT NULL
);
`

// Options configures Open.
type Options struct {
	Logger *slog.Logger
}

// Catalog is the structured content store.
type Catalog struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string, opts Options) (*Catalog, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create catalog dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot migrate catalog %s: %w", path, err)
	}
	return &Catalog{db: db, path: path, logger: opts.Logger}, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.path }

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin catalog transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit catalog transaction: %w", err)
	}
	return nil
}

// Check runs SQLite's quick integrity check.
func (c *Catalog) Check(ctx context.Context) error {
	var res string
	if err := c.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&res); err != nil {
		return fmt.Errorf("cannot check catalog: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("catalog integrity check failed: %s", res)
	}
	return nil
}
