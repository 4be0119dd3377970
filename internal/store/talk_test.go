// ABOUTME: Tests for talk session persistence
// ABOUTME: Covers close-exactly-once semantics and reason preservation

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTalkSession(initiator, target string) *TalkSession {
	return &TalkSession{
		ID:          uuid.New().String(),
		InitiatorID: initiator,
		TargetID:    target,
		StartedAt:   time.Now(),
	}
}

func TestCreateAndGetTalkSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := newTalkSession("supervisor-1", "pso@example.com")
	require.NoError(t, s.CreateTalkSession(ctx, session))

	got, err := s.GetTalkSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "supervisor-1", got.InitiatorID)
	assert.Equal(t, "pso@example.com", got.TargetID)
	assert.Nil(t, got.StoppedAt)
	assert.Nil(t, got.StopReason)
}

func TestGetTalkSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTalkSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseTalkSession_Once(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := newTalkSession("supervisor-1", "pso@example.com")
	require.NoError(t, s.CreateTalkSession(ctx, session))

	closed, err := s.CloseTalkSession(ctx, session.ID, TalkStopUser, time.Now())
	require.NoError(t, err)
	assert.True(t, closed)

	got, err := s.GetTalkSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StoppedAt)
	require.NotNil(t, got.StopReason)
	assert.Equal(t, TalkStopUser, *got.StopReason)
}

func TestCloseTalkSession_SecondCloseKeepsFirstReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := newTalkSession("supervisor-1", "pso@example.com")
	require.NoError(t, s.CreateTalkSession(ctx, session))

	closed, err := s.CloseTalkSession(ctx, session.ID, TalkStopConnectionError, time.Now())
	require.NoError(t, err)
	require.True(t, closed)

	// A later close with a different reason is a no-op.
	closed, err = s.CloseTalkSession(ctx, session.ID, TalkStopUser, time.Now())
	require.NoError(t, err)
	assert.False(t, closed)

	got, err := s.GetTalkSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, TalkStopConnectionError, *got.StopReason)
}

func TestCloseTalkSession_UnknownID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CloseTalkSession(context.Background(), "missing", TalkStopUser, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTalkStopReason_Valid(t *testing.T) {
	assert.True(t, TalkStopBrowserRefresh.Valid())
	assert.True(t, TalkStopPSODisconnected.Valid())
	assert.False(t, TalkStopReason("COFFEE").Valid())
}
