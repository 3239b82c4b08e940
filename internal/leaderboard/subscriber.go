package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/lizardjazz1/morning-quiz-bot/pkg/http/ws"
)

// Broadcaster listens for Redis Pub/Sub leaderboard updates and forwards them
// to feed clients. Every instance runs one, whichever instance published.
type Broadcaster struct {
	redis   *redis.Client
	hub     *ws.Hub
	channel string
	logger  zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered leaderboard broadcaster.
func NewBroadcaster(redis *redis.Client, hub *ws.Hub, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = defaultChannel
	}
	return &Broadcaster{
		redis:   redis,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Logger(),
	}
}

// Run subscribes to the update channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info().Str("channel", b.channel).Msg("subscribed to leaderboard updates")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := deliver(b.hub, []byte(msg.Payload)); err != nil {
				b.logger.Warn().Err(err).Msg("failed to forward leaderboard update")
			}
		}
	}
}
