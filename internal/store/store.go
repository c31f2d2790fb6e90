package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/pagefeed/internal/feed"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade a database created by an older schema.sql. Entry i
// moves user_version from i to i+1; schema.sql itself is always current, so
// every migration must be a no-op on a fresh database.
var migrations = []func(db *sql.DB) error{
	addUnassignedIndex,
}

var currentSchemaVersion = len(migrations)

// pragmas are applied on every open. synchronous=FULL makes a returned write
// durable, which the commit journal depends on.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA busy_timeout = 5000",
}

var (
	_ feed.EntityRepository       = (*Store)(nil)
	_ feed.PageMetadataRepository = (*Store)(nil)
	_ feed.JournalRepository      = (*Store)(nil)
)

// Store holds the entities, pages and journal of one feed.
type Store struct {
	db *sql.DB
}

// Open opens the feed database at path, creating it when missing, and
// brings its schema up to date. Opening the same path again is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	// One connection serializes writers inside the process; other processes
	// wait on busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open store: %s: %w", pragma, err)
		}
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database. Closing a Store without a database is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if version == currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

func addUnassignedIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entities_unassigned
		ON entities(last_modified, content_id COLLATE BINARY)
		WHERE page_id IS NULL
	`)
	return err
}

// verifyPragma reports an error unless PRAGMA name reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
