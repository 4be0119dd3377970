// ABOUTME: Tests for the coalescing TTL cache
// ABOUTME: Covers hits, expiry, single-flight coalescing, and error passthrough

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_FetchesOnMiss(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	got, err := c.Get(context.Background(), "key", func(context.Context) (string, error) {
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestCache_HitSkipsFetch(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	ctx := context.Background()
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	_, err := c.Get(ctx, "key", fetch)
	require.NoError(t, err)
	_, err = c.Get(ctx, "key", fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_ExpiryRefetches(t *testing.T) {
	c := New[string](10 * time.Millisecond)
	defer c.Close()

	ctx := context.Background()
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}

	_, err := c.Get(ctx, "key", fetch)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.Get(ctx, "key", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_CoalescesConcurrentFetches(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const waiters = 8
	results := make([]string, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Get(context.Background(), "key", fetch)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Let every goroutine reach the cache before the fetch completes.
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one fetch")
	for _, got := range results {
		assert.Equal(t, "shared", got)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.Get(ctx, "key", func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("directory unavailable")
	})
	require.Error(t, err)

	got, err := c.Get(ctx, "key", func(context.Context) (string, error) {
		calls.Add(1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	ctx := context.Background()
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	first, err := c.Get(ctx, "key", fetch)
	require.NoError(t, err)
	c.Invalidate("key")
	second, err := c.Get(ctx, "key", fetch)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
