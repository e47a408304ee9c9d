// Package index is the queryable mirror of the Archive (spec.md §4.3): a
// relational schema plus a full-text virtual table over message subject
// and body, held in modernc.org/sqlite (pure Go, no cgo). The Index is
// treated as a rebuildable cache of the Archive — nothing here is load
// bearing on its own, which is why Rebuild can wipe a project's rows and
// repopulate them from archive state.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the Index's SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the Index database at path, initializing the
// schema. If an existing database has an incompatible schema it is deleted
// and recreated, since the Index is only ever a cache of the Archive.
func Open(path string) (*Store, error) {
	store, err := openDB(path)
	if err != nil {
		if isSchemaMismatch(err) {
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("remove incompatible index: %w", removeErr)
			}
			os.Remove(path + "-wal")
			os.Remove(path + "-shm")
			return openDB(path)
		}
		return nil, err
	}
	return store, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQL logic error")
}

func openDB(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	escaped := strings.ReplaceAll(path, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for packages that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, rolling back on any error.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// FormatTime renders t as the fixed-width UTC timestamp string stored in
// every *_ts column, so lexical and chronological ordering agree.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// ParseTime parses a *_ts column value written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// ParseTimeRFC3339Milli parses the `created` timestamp string found in a
// message file's frontmatter. Go's RFC3339 parser accepts an optional
// fractional-seconds field even though time.RFC3339 itself doesn't declare
// one, so the same layout constant handles both with- and without-millis
// timestamps.
func ParseTimeRFC3339Milli(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
