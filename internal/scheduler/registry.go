// Package scheduler provides name-scoped one-shot callbacks: at most one
// pending callback per name, with replacement and cancellation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is the callback run when a job fires.
type Func func(ctx context.Context)

type job struct {
	id    uint64
	timer *time.Timer
	due   time.Time
}

// Registry schedules named callbacks on their own goroutines.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*job
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// ScheduleUnique removes any pending job with the same name and schedules fn
// to run after delay.
func (r *Registry) ScheduleUnique(name string, delay time.Duration, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	if old, ok := r.jobs[name]; ok {
		old.timer.Stop()
		delete(r.jobs, name)
		r.logger.Debug().Str("job", name).Msg("replaced pending job")
	}

	r.seq++
	id := r.seq
	j := &job{id: id, due: time.Now().Add(delay)}
	j.timer = time.AfterFunc(delay, func() { r.fire(name, id, fn) })
	r.jobs[name] = j
}

// Cancel removes a pending job. It reports whether one was pending.
func (r *Registry) Cancel(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(r.jobs, name)
	return true
}

// Pending reports whether a job with name is scheduled and when it is due.
func (r *Registry) Pending(name string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return j.due, true
}

// Len returns the number of pending jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Stop cancels every pending job and waits for running callbacks to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	for name, j := range r.jobs {
		j.timer.Stop()
		delete(r.jobs, name)
	}
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
}

// fire runs fn only if the job is still the registered one for name. A timer
// that was replaced or cancelled after it started firing finds a different id
// (or none) and returns.
func (r *Registry) fire(name string, id uint64, fn Func) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok || j.id != id || r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	delete(r.jobs, name)
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("job", name).Msg("scheduled job panicked")
		}
	}()
	fn(r.ctx)
}
