// ABOUTME: Talk session persistence: create, lookup, and close-exactly-once
// ABOUTME: Closing is a guarded update so a second close is a no-op, not an error

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateTalkSession inserts a new talk session row.
func (s *SQLiteStore) CreateTalkSession(ctx context.Context, session *TalkSession) error {
	query := `
		INSERT INTO talk_sessions (id, initiator_id, target_id, started_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.InitiatorID,
		session.TargetID,
		formatTime(session.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting talk session: %w", err)
	}

	s.logger.Info("talk session created",
		"session_id", session.ID,
		"initiator_id", session.InitiatorID,
		"target_id", session.TargetID,
	)
	return nil
}

// GetTalkSession retrieves a talk session by id, or ErrNotFound.
func (s *SQLiteStore) GetTalkSession(ctx context.Context, id string) (*TalkSession, error) {
	query := `
		SELECT id, initiator_id, target_id, started_at, stopped_at, stop_reason
		FROM talk_sessions
		WHERE id = ?
	`

	session := &TalkSession{}
	var startedAt string
	var stoppedAt, stopReason sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.InitiatorID,
		&session.TargetID,
		&startedAt,
		&stoppedAt,
		&stopReason,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying talk session: %w", err)
	}

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if session.StoppedAt, err = parseNullTime(stoppedAt); err != nil {
		return nil, err
	}
	if stopReason.Valid {
		reason := TalkStopReason(stopReason.String)
		session.StopReason = &reason
	}
	return session, nil
}

// CloseTalkSession sets the stop timestamp and reason for a still-open talk
// session. Returns true when this call closed the session, false when it was
// already closed (a later close never overwrites the recorded reason).
// Returns ErrNotFound when no session with the id exists at all.
func (s *SQLiteStore) CloseTalkSession(ctx context.Context, id string, reason TalkStopReason, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE talk_sessions
		SET stopped_at = ?, stop_reason = ?
		WHERE id = ? AND stopped_at IS NULL
	`, formatTime(at), string(reason), id)
	if err != nil {
		return false, fmt.Errorf("closing talk session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if affected > 0 {
		s.logger.Info("talk session closed", "session_id", id, "reason", reason)
		return true, nil
	}

	// Distinguish "already closed" from "no such session".
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM talk_sessions WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("checking talk session: %w", err)
	}
	return false, nil
}
