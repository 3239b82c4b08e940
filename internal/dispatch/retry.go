package dispatch

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lizardjazz1/morning-quiz-bot/internal/telegram"
)

// RetryPolicy is the single backoff policy for outbound sends.
type RetryPolicy struct {
	Attempts      uint64
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	retries := uint64(0)
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}
	return retry.WithMaxRetries(retries, b)
}

// doWithRetry runs fn until it succeeds, fails with a non-transient error, or the
// attempts run out. A flood-control wait from the API stretches the next delay.
func doWithRetry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var hint time.Duration
	b := p.backoff()
	wrapped := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := b.Next()
		if stop {
			return 0, true
		}
		if hint > d {
			d = hint
		}
		hint = 0
		return d, false
	})

	return retry.DoValue(ctx, wrapped, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if telegram.IsTransient(err) {
			hint = telegram.RetryAfter(err)
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}
