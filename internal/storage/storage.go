// Package storage holds the host-side session registry: session rows and
// transcript turns keyed by session identifier. The default database path is
// ":memory:", so nothing outlives the process; a file path can be configured
// for local debugging. Credentials are never written here.
package storage

import (
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SessionRecord is the persisted shape of one session. It deliberately
// carries no credential.
type SessionRecord struct {
	ID           string
	RoleName     string
	Phase        string
	TurnCounter  int
	CreatedAt    time.Time
	LastActivity time.Time
}

// TurnRecord is one persisted transcript turn.
type TurnRecord struct {
	ID        int64
	SessionID string
	Seq       int
	Speaker   string
	Text      string
	CreatedAt time.Time
}

// SQLiteStore implements the repositories on a single sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens the database. Use ":memory:" to keep all state
// ephemeral.
func NewSQLiteStore(logger *slog.Logger, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection avoids "database is locked" errors with modernc.org/sqlite,
	// and keeps an in-memory database from silently becoming several databases
	// (each sqlite connection to ":memory:" is its own store).
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logger.Warn("failed to set busy timeout", "error", err)
	}

	return &SQLiteStore{db: db, logger: logger.With("component", "storage")}, nil
}

// Init creates the schema.
func (s *SQLiteStore) Init() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		role_name TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL,
		turn_counter INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_activity TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
