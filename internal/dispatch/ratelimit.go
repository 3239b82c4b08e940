package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const chatLimiterIdle = 10 * time.Minute

// RateLimiter enforces the platform's global and per-chat send budgets.
type RateLimiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	chatLimit rate.Limit
	chatBurst int
	chats     map[int64]*chatLimiter
	now       func() time.Time
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRateLimiter allows globalPerSecond sends overall and chatPerMinute per chat.
// Non-positive values disable the corresponding limit.
func NewRateLimiter(globalPerSecond, chatPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		global:    rate.NewLimiter(rate.Inf, 0),
		chatLimit: rate.Inf,
		chats:     make(map[int64]*chatLimiter),
		now:       time.Now,
	}
	if globalPerSecond > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalPerSecond), globalPerSecond)
	}
	if chatPerMinute > 0 {
		rl.chatLimit = rate.Every(time.Minute / time.Duration(chatPerMinute))
		rl.chatBurst = chatPerMinute
	}
	return rl
}

// Wait blocks until a send to chatID is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context, chatID int64) error {
	if err := rl.chat(chatID).Wait(ctx); err != nil {
		return err
	}
	return rl.global.Wait(ctx)
}

func (rl *RateLimiter) chat(chatID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.chats[chatID]
	if !ok {
		rl.pruneLocked(now)
		cl = &chatLimiter{limiter: rate.NewLimiter(rl.chatLimit, rl.chatBurst)}
		rl.chats[chatID] = cl
	}
	cl.lastUsed = now
	return cl.limiter
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	for id, cl := range rl.chats {
		if now.Sub(cl.lastUsed) > chatLimiterIdle {
			delete(rl.chats, id)
		}
	}
}
