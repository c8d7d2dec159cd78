package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRunLock(t *testing.T) {
	lock := NewInMemoryRunLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "duplicate-cleanup", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "duplicate-cleanup", time.Minute)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = lock.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	release2, err := lock.Acquire(ctx, "duplicate-cleanup", time.Minute)
	require.NoError(t, err)

	// a stale release must not free the new holder
	require.NoError(t, release(ctx))
	_, err = lock.Acquire(ctx, "duplicate-cleanup", time.Minute)
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, release2(ctx))
}

func TestInMemoryRunLock_ExpiredHolderReplaced(t *testing.T) {
	lock := NewInMemoryRunLock()
	now := time.Now()
	lock.nowFn = func() time.Time { return now }

	_, err := lock.Acquire(context.Background(), "job", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = lock.Acquire(context.Background(), "job", time.Second)
	assert.NoError(t, err)
}

func TestInMemoryRunLock_Concurrent(t *testing.T) {
	lock := NewInMemoryRunLock()
	var winners int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lock.Acquire(context.Background(), "race", time.Minute); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}
