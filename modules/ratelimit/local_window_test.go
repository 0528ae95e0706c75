package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(limit int, period time.Duration, maxIdentities int) Policy {
	return Policy{
		Limit:                limit,
		Period:               period,
		MaxTrackedIdentities: maxIdentities,
	}
}

func TestLocalWindowCountsWithinWindow(t *testing.T) {
	w := NewLocalWindow(testPolicy(10, time.Minute, 100))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		count, err := w.Record(context.Background(), "client-a", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
}

func TestLocalWindowExpiresOldHits(t *testing.T) {
	w := NewLocalWindow(testPolicy(10, time.Minute, 100))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := w.Record(context.Background(), "client-a", now)
		require.NoError(t, err)
	}

	// Just inside the window: the three old hits still count.
	count, err := w.Record(context.Background(), "client-a", now.Add(59*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// A hit at exactly now minus the window is already outside it, so one
	// full period later only the new hit remains.
	count, err = w.Record(context.Background(), "client-a", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLocalWindowIsolatesKeys(t *testing.T) {
	w := NewLocalWindow(testPolicy(10, time.Minute, 100))
	now := time.Now()

	for i := 0; i < 7; i++ {
		_, err := w.Record(context.Background(), "busy", now)
		require.NoError(t, err)
	}

	count, err := w.Record(context.Background(), "quiet", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a fresh key must start its own window")
}

func TestLocalWindowBoundsTrackedIdentities(t *testing.T) {
	// MaxTrackedIdentities below the shard count collapses to a single
	// shard, making eviction order deterministic.
	const max = 3
	w := NewLocalWindow(testPolicy(10, time.Minute, max))
	require.Len(t, w.shards, 1)

	now := time.Now()
	for i := 0; i < max; i++ {
		_, err := w.Record(context.Background(), Key(fmt.Sprintf("client-%d", i)), now)
		require.NoError(t, err)
	}
	assert.Equal(t, max, w.Len())

	// A fourth identity evicts the least recently seen one (client-0).
	_, err := w.Record(context.Background(), "client-new", now)
	require.NoError(t, err)
	assert.Equal(t, max, w.Len())

	// The evicted client's window restarted from empty.
	count, err := w.Record(context.Background(), "client-0", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLocalWindowEvictionFollowsRecency(t *testing.T) {
	w := NewLocalWindow(testPolicy(10, time.Minute, 2))
	now := time.Now()

	_, err := w.Record(context.Background(), "a", now)
	require.NoError(t, err)
	_, err = w.Record(context.Background(), "b", now)
	require.NoError(t, err)

	// Touch "a" so "b" becomes the oldest-seen identity.
	_, err = w.Record(context.Background(), "a", now.Add(time.Second))
	require.NoError(t, err)

	_, err = w.Record(context.Background(), "c", now.Add(2*time.Second))
	require.NoError(t, err)

	// "a" survived the eviction, "b" did not.
	count, err := w.Record(context.Background(), "a", now.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = w.Record(context.Background(), "b", now.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLocalWindowCapacitySumsToBound(t *testing.T) {
	// 100 does not divide evenly over 16 shards; the remainder must be
	// spread so the total capacity is exactly the configured bound.
	w := NewLocalWindow(testPolicy(10, time.Minute, 100))
	total := 0
	for _, sh := range w.shards {
		total += sh.capacity
	}
	assert.Equal(t, 100, total)
}

func TestLocalWindowConcurrentBurstAdmitsExactlyLimit(t *testing.T) {
	const limit = 50
	w := NewLocalWindow(testPolicy(limit, time.Minute, 100))
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, err := w.Record(context.Background(), "burst", now)
			assert.NoError(t, err)
			if count <= limit {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Record returns a distinct count per call, so exactly limit of the
	// 2*limit concurrent hits land at or under the limit.
	assert.Equal(t, limit, allowed)
}

func TestLocalWindowSweepRemovesIdleIdentities(t *testing.T) {
	w := NewLocalWindow(testPolicy(10, time.Minute, 100))
	now := time.Now()

	_, err := w.Record(context.Background(), "idle", now)
	require.NoError(t, err)
	_, err = w.Record(context.Background(), "active", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, w.Len())

	removed := w.Sweep(now.Add(90 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.Len())
}
