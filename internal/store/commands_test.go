// ABOUTME: Tests for pending command persistence
// ABOUTME: Covers active lookup filtering, expiry, and idempotent acknowledgment

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPendingCommand(target string, cmdType CommandType, issuedAt time.Time) *PendingCommand {
	return &PendingCommand{
		ID:        uuid.New().String(),
		TargetID:  target,
		Type:      cmdType,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
	}
}

func TestFetchActiveCommand_ReturnsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	older := newPendingCommand("pso-1", CommandStart, now.Add(-2*time.Minute))
	newer := newPendingCommand("pso-1", CommandStop, now.Add(-1*time.Minute))
	require.NoError(t, s.CreatePendingCommand(ctx, older))
	require.NoError(t, s.CreatePendingCommand(ctx, newer))

	got, err := s.FetchActiveCommand(ctx, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, CommandStop, got.Type)
}

func TestFetchActiveCommand_NoCommands(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchActiveCommand(context.Background(), "pso-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchActiveCommand_NeverReturnsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Issued long enough ago that the 5 minute TTL has lapsed.
	expired := newPendingCommand("pso-1", CommandStart, time.Now().Add(-10*time.Minute))
	require.NoError(t, s.CreatePendingCommand(ctx, expired))

	_, err := s.FetchActiveCommand(ctx, "pso-1")
	assert.ErrorIs(t, err, ErrNotFound, "expired command must be filtered at read time")
}

func TestFetchActiveCommand_SkipsAcknowledged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cmd := newPendingCommand("pso-1", CommandStart, time.Now())
	require.NoError(t, s.CreatePendingCommand(ctx, cmd))

	updated, err := s.AcknowledgeCommands(ctx, []string{cmd.ID}, "pso-1")
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	_, err = s.FetchActiveCommand(ctx, "pso-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcknowledgeCommands_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cmd := newPendingCommand("pso-1", CommandStart, time.Now())
	require.NoError(t, s.CreatePendingCommand(ctx, cmd))

	first, err := s.AcknowledgeCommands(ctx, []string{cmd.ID}, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := s.AcknowledgeCommands(ctx, []string{cmd.ID}, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second, "re-acknowledging must succeed with zero updates")
}

func TestAcknowledgeCommands_ExpiredIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := newPendingCommand("pso-1", CommandStop, time.Now().Add(-10*time.Minute))
	require.NoError(t, s.CreatePendingCommand(ctx, expired))

	updated, err := s.AcknowledgeCommands(ctx, []string{expired.ID}, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestAcknowledgeCommands_EmptyIDs(t *testing.T) {
	s := newTestStore(t)

	updated, err := s.AcknowledgeCommands(context.Background(), nil, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestAcknowledgeCommands_ConcurrentRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cmd := newPendingCommand("pso-1", CommandStart, time.Now())
	require.NoError(t, s.CreatePendingCommand(ctx, cmd))

	// Simulate a client retrying an ack while the first is in flight.
	results := make([]int, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.AcknowledgeCommands(ctx, []string{cmd.ID}, "pso-1")
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, results[0]+results[1], "the same command must ack exactly once")
}

func TestPendingCommand_RoundTripFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issued := time.Now().Truncate(time.Second)
	cmd := newPendingCommand("pso-1", CommandStop, issued)
	cmd.Reason = "shift ended"
	require.NoError(t, s.CreatePendingCommand(ctx, cmd))

	got, err := s.FetchActiveCommand(ctx, "pso-1")
	require.NoError(t, err)
	assert.Equal(t, "shift ended", got.Reason)
	assert.True(t, got.IssuedAt.Equal(issued.UTC()))
	assert.True(t, got.ExpiresAt.Equal(issued.Add(5*time.Minute).UTC()))
	assert.False(t, got.Acknowledged())
}
