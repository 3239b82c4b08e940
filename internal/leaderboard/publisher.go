// Package leaderboard serves room and global rankings over HTTP and streams
// changes to WebSocket clients through Redis Pub/Sub.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lizardjazz1/morning-quiz-bot/internal/ledger"
	ws "github.com/lizardjazz1/morning-quiz-bot/pkg/http/ws"
)

const defaultChannel = "lb:updates"

// Source is the ranking data the leaderboard reads.
type Source interface {
	Leaderboard(chatID int64, n int) []ledger.Ranked
	GlobalLeaderboard(n int) []ledger.Ranked
}

// PublisherOptions configures update publishing.
type PublisherOptions struct {
	TopN    int
	Channel string
	// Debounce groups changes arriving within the window into one update.
	Debounce time.Duration
}

// Publisher collects changed rooms and publishes their top-N plus the global
// top-N. Publishing happens off the answer path.
type Publisher struct {
	source   Source
	send     func(ctx context.Context, data []byte) error
	topN     int
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[int64]struct{}
	signal  chan struct{}
	now     func() time.Time
}

// NewPublisher publishes updates to a Redis channel.
func NewPublisher(rdb *redis.Client, source Source, opts PublisherOptions, logger zerolog.Logger) *Publisher {
	channel := opts.Channel
	if channel == "" {
		channel = defaultChannel
	}
	p := newPublisher(source, opts, logger)
	p.send = func(ctx context.Context, data []byte) error {
		return rdb.Publish(ctx, channel, data).Err()
	}
	return p
}

// NewLocalPublisher hands updates straight to the hub. Used without Redis.
func NewLocalPublisher(hub *ws.Hub, source Source, opts PublisherOptions, logger zerolog.Logger) *Publisher {
	p := newPublisher(source, opts, logger)
	p.send = func(_ context.Context, data []byte) error {
		return deliver(hub, data)
	}
	return p
}

func newPublisher(source Source, opts PublisherOptions, logger zerolog.Logger) *Publisher {
	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Publisher{
		source:   source,
		topN:     topN,
		debounce: debounce,
		logger:   logger.With().Str("component", "leaderboard_publisher").Logger(),
		pending:  make(map[int64]struct{}),
		signal:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Notify marks a room as changed. It never blocks and is meant for
// ledger.OnChange.
func (p *Publisher) Notify(chatID int64) {
	p.mu.Lock()
	p.pending[chatID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Run publishes pending changes until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.signal:
		}

		timer := time.NewTimer(p.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		p.Flush(ctx)
	}
}

// Flush publishes every pending room and, if any, the global board.
func (p *Publisher) Flush(ctx context.Context) {
	p.mu.Lock()
	rooms := make([]int64, 0, len(p.pending))
	for chatID := range p.pending {
		rooms = append(rooms, chatID)
	}
	p.pending = make(map[int64]struct{})
	p.mu.Unlock()

	if len(rooms) == 0 {
		return
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })

	for _, chatID := range rooms {
		p.publish(ctx, ws.LeaderboardUpdatePayload{
			Scope:  ws.ScopeRoom,
			ChatID: chatID,
			Top:    toWSEntries(p.source.Leaderboard(chatID, p.topN)),
		})
	}
	p.publish(ctx, ws.LeaderboardUpdatePayload{
		Scope: ws.ScopeGlobal,
		Top:   toWSEntries(p.source.GlobalLeaderboard(p.topN)),
	})
}

func (p *Publisher) publish(ctx context.Context, payload ws.LeaderboardUpdatePayload) {
	payload.PublishedAt = p.now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to marshal leaderboard update")
		return
	}
	if err := p.send(ctx, data); err != nil {
		p.logger.Warn().Err(err).Str("scope", payload.Scope).Int64("chat_id", payload.ChatID).Msg("failed to publish leaderboard update")
	}
}

// deliver forwards one encoded update to the hub subscribers it concerns.
func deliver(hub *ws.Hub, data []byte) error {
	var evt ws.LeaderboardUpdatePayload
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode leaderboard update: %w", err)
	}
	msg := ws.Message{Type: ws.TypeLeaderboardUpdate, Payload: data}
	hub.Publish(evt.ChatID, msg)
	return nil
}

func toWSEntries(rows []ledger.Ranked) []ws.LeaderboardEntry {
	result := make([]ws.LeaderboardEntry, len(rows))
	for i, r := range rows {
		result[i] = ws.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      r.UserID,
			DisplayName: r.Name,
			Score:       r.Score,
		}
	}
	return result
}
