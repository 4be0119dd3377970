// ABOUTME: Streaming session persistence with the one-open-row-per-user invariant
// ABOUTME: Start closes prior open rows in the same transaction; stop is a guarded update

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StartStreamingSession closes any open sessions for the user and creates a
// new one, all within a single transaction. Closing priors here makes start
// self-healing against sessions left open by a crashed client.
func (s *SQLiteStore) StartStreamingSession(ctx context.Context, userID, email string, at time.Time) (*StreamingSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(at)

	res, err := tx.ExecContext(ctx, `
		UPDATE streaming_sessions
		SET stopped_at = ?, updated_at = ?
		WHERE user_id = ? AND stopped_at IS NULL
	`, now, now, userID)
	if err != nil {
		return nil, fmt.Errorf("closing prior sessions: %w", err)
	}
	closed, _ := res.RowsAffected()

	session := &StreamingSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Email:     email,
		StartedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO streaming_sessions (id, user_id, email, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.UserID, session.Email, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("streaming session started",
		"session_id", session.ID,
		"user_id", userID,
		"closed_prior", closed,
	)
	return session, nil
}

// StopStreamingSession closes the most recent open session for the user.
// Returns false when no open session exists; that is an expected outcome,
// not an error.
func (s *SQLiteStore) StopStreamingSession(ctx context.Context, userID, reason string, at time.Time) (bool, error) {
	now := formatTime(at)

	res, err := s.db.ExecContext(ctx, `
		UPDATE streaming_sessions
		SET stopped_at = ?, stop_reason = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM streaming_sessions
			WHERE user_id = ? AND stopped_at IS NULL
			ORDER BY started_at DESC, rowid DESC
			LIMIT 1
		)
	`, now, reason, now, userID)
	if err != nil {
		return false, fmt.Errorf("stopping session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}

	if affected > 0 {
		s.logger.Info("streaming session stopped", "user_id", userID, "reason", reason)
	}
	return affected > 0, nil
}

// ActiveStreamingSessions returns all open sessions ordered by start time descending.
func (s *SQLiteStore) ActiveStreamingSessions(ctx context.Context) ([]*StreamingSession, error) {
	query := streamingSelect + `
		WHERE stopped_at IS NULL
		ORDER BY started_at DESC, rowid DESC
	`
	return s.queryStreamingSessions(ctx, query)
}

// ActiveStreamingSessionsForUsers returns open sessions restricted to the
// given user ids. An empty id list yields an empty result.
func (s *SQLiteStore) ActiveStreamingSessionsForUsers(ctx context.Context, userIDs []string) ([]*StreamingSession, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(userIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := streamingSelect + fmt.Sprintf(`
		WHERE stopped_at IS NULL AND user_id IN (%s)
		ORDER BY started_at DESC, rowid DESC
	`, placeholders)

	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	return s.queryStreamingSessions(ctx, query, args...)
}

// LatestStreamingSessionByEmail returns the most recently updated session for
// the email, open or closed, or ErrNotFound. Ties break on rowid so the
// result is deterministic ("latest wins").
func (s *SQLiteStore) LatestStreamingSessionByEmail(ctx context.Context, email string) (*StreamingSession, error) {
	query := streamingSelect + `
		WHERE email = ?
		ORDER BY updated_at DESC, started_at DESC, rowid DESC
		LIMIT 1
	`

	sessions, err := s.queryStreamingSessions(ctx, query, email)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return sessions[0], nil
}

const streamingSelect = `
	SELECT id, user_id, email, started_at, stopped_at, stop_reason, updated_at
	FROM streaming_sessions
`

func (s *SQLiteStore) queryStreamingSessions(ctx context.Context, query string, args ...any) ([]*StreamingSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying streaming sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*StreamingSession
	for rows.Next() {
		session := &StreamingSession{}
		var startedAt, updatedAt string
		var stoppedAt, stopReason sql.NullString

		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Email,
			&startedAt,
			&stoppedAt,
			&stopReason,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning streaming session: %w", err)
		}

		if session.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if session.StoppedAt, err = parseNullTime(stoppedAt); err != nil {
			return nil, err
		}
		session.StopReason = stopReason.String

		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating streaming sessions: %w", err)
	}
	return sessions, nil
}
