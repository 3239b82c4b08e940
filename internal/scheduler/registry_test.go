package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.New(io.Discard))
	t.Cleanup(r.Stop)
	return r
}

func TestScheduleUniqueFires(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	r.ScheduleUnique("job", 10*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	_, pending := r.Pending("job")
	assert.True(t, pending)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	_, pending = r.Pending("job")
	assert.False(t, pending)
}

func TestScheduleUniqueReplacesExisting(t *testing.T) {
	r := newRegistry(t)
	var first, second int32

	r.ScheduleUnique("job", 20*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&first, 1) })
	r.ScheduleUnique("job", 30*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&second, 1) })
	assert.Equal(t, 1, r.Len())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
}

func TestCancelPreventsFiring(t *testing.T) {
	r := newRegistry(t)
	var calls int32

	r.ScheduleUnique("job", 20*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&calls, 1) })
	assert.True(t, r.Cancel("job"))
	assert.False(t, r.Cancel("job"))
	assert.False(t, r.Cancel("never"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestIndependentNames(t *testing.T) {
	r := newRegistry(t)
	var a, b int32

	r.ScheduleUnique("a", 5*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&a, 1) })
	r.ScheduleUnique("b", 5*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&b, 1) })

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&a) == 1 && atomic.LoadInt32(&b) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopDropsPendingJobs(t *testing.T) {
	r := NewRegistry(zerolog.New(io.Discard))
	var calls int32

	r.ScheduleUnique("job", 20*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&calls, 1) })
	r.Stop()
	r.ScheduleUnique("late", time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&calls, 1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, r.Len())
}

func TestPanickingJobIsContained(t *testing.T) {
	r := newRegistry(t)
	var after int32

	r.ScheduleUnique("boom", time.Millisecond, func(ctx context.Context) { panic("boom") })
	r.ScheduleUnique("next", 10*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&after, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&after) == 1 }, time.Second, 5*time.Millisecond)
}
