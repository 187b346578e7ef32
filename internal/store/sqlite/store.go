// Package sqlite implements the store contract on SQLite via the pure-Go
// modernc driver. Suited for single-node deployments and tests.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Config holds SQLite configuration.
type Config struct {
	Path     string // database file path, or ":memory:"
	MaxConns int    // max open connections (default 4)
}

// Open opens (and creates, if needed) the database at cfg.Path, applies the
// WAL/busy-timeout pragmas, and runs migrations.
func Open(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL for concurrent readers, busy timeout so concurrent writers retry
	// instead of failing with SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id    TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			status        TEXT NOT NULL CHECK (status IN ('in_progress', 'completed', 'abandoned')),
			profile       TEXT NOT NULL DEFAULT '{}',
			message_count INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			completed_at  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			seq              INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id       TEXT NOT NULL UNIQUE,
			session_id       TEXT NOT NULL REFERENCES sessions(session_id),
			role             TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content          TEXT NOT NULL,
			created_at       TEXT NOT NULL,
			extracted_fields TEXT,
			provider_meta    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

		CREATE TABLE IF NOT EXISTS profile_records (
			record_id  TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE REFERENCES sessions(session_id),
			user_id    TEXT NOT NULL,
			fields     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(ddl)
	return err
}
