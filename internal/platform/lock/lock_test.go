package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "order:o1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "order:o1", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = locker.Acquire(ctx, "order:o2", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "order:o1", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLockerExpiredHoldIsTakenOver(t *testing.T) {
	locker := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.clock = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, err := locker.Acquire(ctx, "checkout:u1", time.Second)
	require.NoError(t, err)
	now = now.Add(2 * time.Second)
	_, err = locker.Acquire(ctx, "checkout:u1", time.Second)
	require.NoError(t, err)

	// the stale owner must not release the new holder
	require.NoError(t, staleRelease(ctx))
	_, err = locker.Acquire(ctx, "checkout:u1", time.Second)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestMemoryLockerConcurrentAcquire(t *testing.T) {
	locker := NewMemoryLocker()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(context.Background(), "order:hot", time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client)
	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	release, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
