// ABOUTME: Pending command persistence: create, active lookup, and acknowledgment
// ABOUTME: Expiry is a read-time filter on expires_at, rows are never deleted

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreatePendingCommand inserts a pending command row. The caller is expected
// to have computed ExpiresAt from IssuedAt and the configured TTL.
func (s *SQLiteStore) CreatePendingCommand(ctx context.Context, cmd *PendingCommand) error {
	query := `
		INSERT INTO pending_commands (id, target_id, type, reason, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var reason sql.NullString
	if cmd.Reason != "" {
		reason = sql.NullString{String: cmd.Reason, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		cmd.ID,
		cmd.TargetID,
		string(cmd.Type),
		reason,
		formatTime(cmd.IssuedAt),
		formatTime(cmd.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting pending command: %w", err)
	}

	s.logger.Debug("pending command created",
		"command_id", cmd.ID,
		"target_id", cmd.TargetID,
		"type", cmd.Type,
		"expires_at", cmd.ExpiresAt,
	)
	return nil
}

// FetchActiveCommand returns the most recent unacknowledged, unexpired command
// for the target, or ErrNotFound. Expired rows are excluded even though they
// are never deleted.
func (s *SQLiteStore) FetchActiveCommand(ctx context.Context, targetID string) (*PendingCommand, error) {
	query := `
		SELECT id, target_id, type, reason, issued_at, expires_at, acknowledged_at, acknowledged_by
		FROM pending_commands
		WHERE target_id = ?
		  AND acknowledged_at IS NULL
		  AND expires_at > ?
		ORDER BY issued_at DESC, rowid DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, targetID, formatTime(time.Now()))
	cmd, err := scanPendingCommand(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active command: %w", err)
	}
	return cmd, nil
}

// AcknowledgeCommands marks the given command ids as acknowledged and returns
// the number of rows newly affected. Already-acknowledged or expired ids are
// skipped silently: re-acknowledging is a success with a smaller (possibly
// zero) count, never an error.
func (s *SQLiteStore) AcknowledgeCommands(ctx context.Context, ids []string, ackerID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		UPDATE pending_commands
		SET acknowledged_at = ?, acknowledged_by = ?
		WHERE id IN (%s)
		  AND acknowledged_at IS NULL
		  AND expires_at > ?
	`, placeholders)

	now := formatTime(time.Now())
	args := make([]any, 0, len(ids)+3)
	args = append(args, now, ackerID)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, now)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("acknowledging commands: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}

	s.logger.Debug("commands acknowledged",
		"requested", len(ids),
		"updated", affected,
		"acker_id", ackerID,
	)
	return int(affected), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingCommand(row rowScanner) (*PendingCommand, error) {
	cmd := &PendingCommand{}
	var cmdType string
	var reason, ackedAt, ackedBy sql.NullString
	var issuedAt, expiresAt string

	if err := row.Scan(
		&cmd.ID,
		&cmd.TargetID,
		&cmdType,
		&reason,
		&issuedAt,
		&expiresAt,
		&ackedAt,
		&ackedBy,
	); err != nil {
		return nil, err
	}

	cmd.Type = CommandType(cmdType)
	cmd.Reason = reason.String
	cmd.AcknowledgedBy = ackedBy.String

	var err error
	if cmd.IssuedAt, err = parseTime(issuedAt); err != nil {
		return nil, err
	}
	if cmd.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if cmd.AcknowledgedAt, err = parseNullTime(ackedAt); err != nil {
		return nil, err
	}
	return cmd, nil
}
