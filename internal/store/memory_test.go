package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	_, err := ms.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, ms.Set(ctx, "k", []byte("v"), 0))

	value, err := ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, ms.Delete(ctx, "k"))
	_, err = ms.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deleting a missing key is not an error
	assert.NoError(t, ms.Delete(ctx, "k"))
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Now()
	ms := newMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, "k", []byte("v"), time.Minute))

	_, err := ms.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute + time.Second)
	_, err = ms.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_IncrementWindow(t *testing.T) {
	now := time.Now()
	ms := newMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	count, resetAt, err := ms.Increment(ctx, "bucket", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	count, resetAt2, err := ms.Increment(ctx, "bucket", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	// Window start does not move on subsequent increments
	assert.Equal(t, resetAt, resetAt2)

	// After the window elapses the counter restarts at 1
	now = now.Add(2 * time.Minute)
	count, _, err = ms.Increment(ctx, "bucket", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	// Create-if-absent
	ok, err := ms.CompareAndSwap(ctx, "k", nil, []byte("v1"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second create fails
	ok, err = ms.CompareAndSwap(ctx, "k", nil, []byte("v2"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Swap with wrong prev fails
	ok, err = ms.CompareAndSwap(ctx, "k", []byte("wrong"), []byte("v2"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Swap with matching prev succeeds
	ok, err = ms.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, _, err := ms.Increment(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	count, _, err := ms.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine+1), count)
}

func TestMemoryStore_PruneExpired(t *testing.T) {
	now := time.Now()
	ms := newMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, ms.Set(ctx, fmt.Sprintf("short-%d", i), []byte("v"), time.Second))
	}
	require.NoError(t, ms.Set(ctx, "long", []byte("v"), time.Hour))

	now = now.Add(time.Minute)
	pruned, err := ms.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pruned)

	_, err = ms.Get(ctx, "long")
	assert.NoError(t, err)
}
