// ABOUTME: Store interface and data types for pso-orchestrator persistence
// ABOUTME: Defines PendingCommand, StreamingSession, TalkSession and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// CommandType identifies the administrative action a command carries.
type CommandType string

const (
	CommandStart CommandType = "START"
	CommandStop  CommandType = "STOP"
)

// Valid reports whether t is one of the closed set of command types.
func (t CommandType) Valid() bool {
	return t == CommandStart || t == CommandStop
}

// TalkStopReason identifies why a talk session ended. The set is closed and
// serialized across client and server; additions require explicit versioning.
type TalkStopReason string

const (
	TalkStopUser                   TalkStopReason = "USER_STOP"
	TalkStopConnectionError        TalkStopReason = "CONNECTION_ERROR"
	TalkStopBrowserRefresh         TalkStopReason = "BROWSER_REFRESH"
	TalkStopPSODisconnected        TalkStopReason = "PSO_DISCONNECTED"
	TalkStopSupervisorDisconnected TalkStopReason = "SUPERVISOR_DISCONNECTED"
)

// Valid reports whether r is one of the closed set of talk stop reasons.
func (r TalkStopReason) Valid() bool {
	switch r {
	case TalkStopUser, TalkStopConnectionError, TalkStopBrowserRefresh,
		TalkStopPSODisconnected, TalkStopSupervisorDisconnected:
		return true
	}
	return false
}

// PendingCommand is a persisted administrative command awaiting delivery
// and/or acknowledgment. Rows are never deleted on expiry; staleness is a
// read-time filter on ExpiresAt.
type PendingCommand struct {
	ID             string
	TargetID       string
	Type           CommandType
	Reason         string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy string
}

// Acknowledged reports whether the command has been acknowledged.
func (p *PendingCommand) Acknowledged() bool {
	return p.AcknowledgedAt != nil
}

// StreamingSession records one camera/audio streaming period for a user.
// At most one row per user is open (StoppedAt == nil) at any time.
type StreamingSession struct {
	ID         string
	UserID     string
	Email      string
	StartedAt  time.Time
	StoppedAt  *time.Time
	StopReason string
	UpdatedAt  time.Time
}

// Open reports whether the session is still running.
func (s *StreamingSession) Open() bool {
	return s.StoppedAt == nil
}

// TalkSession records one supervisor push-to-talk period against a PSO.
// A session is closed exactly once; StopReason is set together with StoppedAt.
type TalkSession struct {
	ID          string
	InitiatorID string
	TargetID    string
	StartedAt   time.Time
	StoppedAt   *time.Time
	StopReason  *TalkStopReason
}

// Store defines the persistence operations used by the orchestration core.
type Store interface {
	// Pending commands
	CreatePendingCommand(ctx context.Context, cmd *PendingCommand) error
	FetchActiveCommand(ctx context.Context, targetID string) (*PendingCommand, error)
	AcknowledgeCommands(ctx context.Context, ids []string, ackerID string) (int, error)

	// Streaming sessions
	StartStreamingSession(ctx context.Context, userID, email string, at time.Time) (*StreamingSession, error)
	StopStreamingSession(ctx context.Context, userID, reason string, at time.Time) (bool, error)
	ActiveStreamingSessions(ctx context.Context) ([]*StreamingSession, error)
	ActiveStreamingSessionsForUsers(ctx context.Context, userIDs []string) ([]*StreamingSession, error)
	LatestStreamingSessionByEmail(ctx context.Context, email string) (*StreamingSession, error)

	// Talk sessions
	CreateTalkSession(ctx context.Context, session *TalkSession) error
	GetTalkSession(ctx context.Context, id string) (*TalkSession, error)
	CloseTalkSession(ctx context.Context, id string, reason TalkStopReason, at time.Time) (bool, error)

	// Close releases any resources held by the store
	Close() error
}
