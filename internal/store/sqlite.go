// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL mode, and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pending_commands (
			id              TEXT PRIMARY KEY,
			target_id       TEXT NOT NULL,
			type            TEXT NOT NULL,
			reason          TEXT,
			issued_at       TEXT NOT NULL,
			expires_at      TEXT NOT NULL,
			acknowledged_at TEXT,
			acknowledged_by TEXT,

			CHECK (type IN ('START', 'STOP'))
		);

		CREATE INDEX IF NOT EXISTS idx_pending_commands_target
			ON pending_commands(target_id, issued_at DESC);
		CREATE INDEX IF NOT EXISTS idx_pending_commands_expires
			ON pending_commands(expires_at);

		CREATE TABLE IF NOT EXISTS streaming_sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			email       TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			stopped_at  TEXT,
			stop_reason TEXT,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_streaming_sessions_user
			ON streaming_sessions(user_id, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_streaming_sessions_email
			ON streaming_sessions(email, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_streaming_sessions_open
			ON streaming_sessions(user_id) WHERE stopped_at IS NULL;

		CREATE TABLE IF NOT EXISTS talk_sessions (
			id           TEXT PRIMARY KEY,
			initiator_id TEXT NOT NULL,
			target_id    TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			stopped_at   TEXT,
			stop_reason  TEXT,

			CHECK (stop_reason IS NULL OR stop_reason IN (
				'USER_STOP',
				'CONNECTION_ERROR',
				'BROWSER_REFRESH',
				'PSO_DISCONNECTED',
				'SUPERVISOR_DISCONNECTED'
			))
		);

		CREATE INDEX IF NOT EXISTS idx_talk_sessions_target
			ON talk_sessions(target_id, started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// formatTime converts a time to the canonical stored representation.
// All timestamps are stored as RFC3339 UTC strings, so lexicographic
// comparison in SQL matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime converts a stored timestamp string back to a time.Time.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseNullTime converts a nullable stored timestamp to *time.Time.
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
