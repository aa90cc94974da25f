// Package catalog keeps a SQLite record of fetched papers, processed
// outputs, generated decks and finetuning runs.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"paperslides/internal/logging"
)

// SchemaVersion is recorded in schema_versions after initialization.
// v1: papers, processed, decks, runs
// v2: papers.local_path, decks.slides
const SchemaVersion = 2

// Store is the catalog database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// Open opens (creating when needed) the catalog at path. ":memory:" opens a
// private in-memory catalog.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "catalog.Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Catalog ready at %s", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		short_id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		authors TEXT DEFAULT '[]',
		categories TEXT DEFAULT '[]',
		primary_category TEXT,
		published TEXT,
		pdf_url TEXT,
		fetched_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processed (
		source_file TEXT PRIMARY KEY,
		json_path TEXT NOT NULL,
		title TEXT,
		sections INTEGER DEFAULT 0,
		paragraphs INTEGER DEFAULT 0,
		text_length INTEGER DEFAULT 0,
		processed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decks (
		id TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		model TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decks_source ON decks(source_file);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		detail TEXT,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		return err
	}
	return nil
}

// migration adds a column introduced after v1.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	{"papers", "local_path", "TEXT DEFAULT ''"},
	{"decks", "slides", "INTEGER DEFAULT 0"},
}

func (s *Store) migrate() error {
	applied := 0
	for _, m := range pendingMigrations {
		if s.columnExists(m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if s.schemaVersion() < SchemaVersion {
		if _, err := s.db.Exec("INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)",
			SchemaVersion, formatTime(s.now())); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	logging.StoreDebug("Catalog migrations complete: applied=%d", applied)
	return nil
}

func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func (s *Store) schemaVersion() int {
	var v sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&v); err != nil {
		return 0
	}
	return int(v.Int64)
}

// SchemaVersion returns the recorded schema version.
func (s *Store) SchemaVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaVersion()
}

// Stats counts catalog rows.
type Stats struct {
	Papers     int `json:"papers"`
	Processed  int `json:"processed"`
	Decks      int `json:"decks"`
	Runs       int `json:"runs"`
	FailedRuns int `json:"failed_runs"`
}

// Stats returns row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, q := range []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM papers", &st.Papers},
		{"SELECT COUNT(*) FROM processed", &st.Processed},
		{"SELECT COUNT(*) FROM decks", &st.Decks},
		{"SELECT COUNT(*) FROM runs", &st.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &st.FailedRuns},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Stats{}, fmt.Errorf("failed to count: %w", err)
		}
	}
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
