// ABOUTME: Tests for the in-memory queue
// ABOUTME: Covers delivery, handler-error redelivery, and context cancellation

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DeliversMessages(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, []byte("one")))
	require.NoError(t, q.Enqueue(ctx, []byte("two")))

	got := make(chan string, 2)
	go q.Consume(ctx, func(_ context.Context, body []byte) error {
		got <- string(body)
		return nil
	})

	assert.Equal(t, "one", <-got)
	assert.Equal(t, "two", <-got)
}

func TestMemoryQueue_RedeliversOnHandlerError(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, []byte("flaky")))

	var attempts atomic.Int32
	done := make(chan struct{})
	go q.Consume(ctx, func(_ context.Context, body []byte) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered after handler error")
	}
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestMemoryQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Consume(ctx, func(context.Context, []byte) error { return nil })
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop on cancellation")
	}
}
