package telegram

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaseSingleHolder(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	a := NewLease(client, "quizbot:poller:lease", 30*time.Second, zerolog.Nop())
	b := NewLease(client, "quizbot:poller:lease", 30*time.Second, zerolog.Nop())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-acquire by the holder refreshes.
	ok, err = a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Release by a non-holder leaves the key alone.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("quizbot:poller:lease"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("quizbot:poller:lease"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	a := NewLease(client, "lease", 5*time.Second, zerolog.Nop())
	b := NewLease(client, "lease", 5*time.Second, zerolog.Nop())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaseRunStopsWithContext(t *testing.T) {
	mr, client := newTestRedis(t)
	lease := NewLease(client, "lease", 300*time.Millisecond, zerolog.Nop())

	var running atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lease.Run(ctx, func(ctx context.Context) error {
			running.Store(true)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	assert.Eventually(t, running.Load, time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists("lease"))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, mr.Exists("lease"))
}
