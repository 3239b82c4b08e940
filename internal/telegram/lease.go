package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Only one process may call getUpdates per bot token; a second poller gets 409
// Conflict. Lease elects the poller through a Redis key.
const (
	refreshScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	releaseScript = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
)

// Lease is a Redis-backed single-holder lock with TTL refresh.
type Lease struct {
	redis  *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewLease(client *redis.Client, key string, ttl time.Duration, logger zerolog.Logger) *Lease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lease{
		redis:  client,
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
		logger: logger.With().Str("component", "poller_lease").Str("key", key).Logger(),
	}
}

// Acquire takes the lease or refreshes it if this holder already owns it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	return l.Refresh(ctx)
}

// Refresh extends the TTL if this holder still owns the lease.
func (l *Lease) Refresh(ctx context.Context) (bool, error) {
	n, err := l.redis.Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("refresh lease: %w", err)
	}
	return n == 1, nil
}

// Release deletes the key only if this holder owns it.
func (l *Lease) Release(ctx context.Context) error {
	return l.redis.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
}

// Run waits for the lease, then runs fn with a context that is cancelled if the
// lease is lost. After fn returns it releases and, while ctx is alive, starts
// waiting again.
func (l *Lease) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := l.ttl / 3
	for {
		if err := l.waitAcquire(ctx, interval); err != nil {
			return err
		}
		l.logger.Info().Msg("lease acquired")

		leaseCtx, cancel := context.WithCancel(ctx)
		go l.keepAlive(leaseCtx, cancel, interval)
		err := fn(leaseCtx)
		cancel()

		releaseCtx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		if rerr := l.Release(releaseCtx); rerr != nil {
			l.logger.Warn().Err(rerr).Msg("lease release failed")
		}
		rcancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && err != context.Canceled {
			l.logger.Warn().Err(err).Msg("lease holder stopped")
		}
	}
}

func (l *Lease) waitAcquire(ctx context.Context, interval time.Duration) error {
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			l.logger.Warn().Err(err).Msg("lease acquire failed")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (l *Lease) keepAlive(ctx context.Context, cancel context.CancelFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Refresh(ctx)
			if err != nil {
				l.logger.Warn().Err(err).Msg("lease refresh failed")
				continue
			}
			if !ok {
				l.logger.Warn().Msg("lease lost")
				cancel()
				return
			}
		}
	}
}
