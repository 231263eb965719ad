package redis

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestHoldTrackerLifecycle(t *testing.T) {
	client, mr := setupTestRedis(t)
	tracker := NewHoldTracker(client, logger.NewNopLogger())
	ctx := context.Background()
	deadline := time.Date(2030, time.March, 1, 12, 10, 0, 0, time.UTC)

	require.NoError(t, tracker.Track(ctx, "tok-1", deadline, 10*time.Minute))
	assert.True(t, mr.Exists("reservation_hold:tok-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("reservation_hold:tok-1"))
	stored, err := mr.Get("reservation_hold:tok-1")
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(deadline.Unix(), 10), stored)

	mr.FastForward(11 * time.Minute)
	assert.False(t, mr.Exists("reservation_hold:tok-1"))

	require.NoError(t, tracker.Track(ctx, "tok-2", deadline, time.Minute))
	require.NoError(t, tracker.Untrack(ctx, "tok-2"))
	assert.False(t, mr.Exists("reservation_hold:tok-2"))
}

func TestTrackIgnoresElapsedHolds(t *testing.T) {
	client, mr := setupTestRedis(t)
	tracker := NewHoldTracker(client, logger.NewNopLogger())

	require.NoError(t, tracker.Track(context.Background(), "tok", time.Now(), 0))
	assert.False(t, mr.Exists("reservation_hold:tok"))
}

func TestSweepLockIsExclusive(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	first := NewSweepLock(client, 30*time.Second)
	second := NewSweepLock(client, 30*time.Second)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Only the owner may release.
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists(sweepLockKey))

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)
	ok, err = first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")
}

func TestSweepLockConcurrentAcquire(t *testing.T) {
	client, _ := setupTestRedis(t)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := NewSweepLock(client, time.Minute).Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
