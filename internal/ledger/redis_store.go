package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per room, "<prefix>:<chat_id>", mapping user id to
// a JSON entry. Known rooms are tracked in "<prefix>:rooms".
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "scores"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) roomsKey() string {
	return s.prefix + ":rooms"
}

func (s *RedisStore) roomKey(chatID int64) string {
	return fmt.Sprintf("%s:%d", s.prefix, chatID)
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	rooms, err := s.redis.SMembers(ctx, s.roomsKey()).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("list rooms: %w", err)
	}

	var snap Snapshot
	for _, raw := range rooms {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		fields, err := s.redis.HGetAll(ctx, s.roomKey(chatID)).Result()
		if err != nil {
			return Snapshot{}, fmt.Errorf("load room %d: %w", chatID, err)
		}
		for userField, data := range fields {
			var e Entry
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				return Snapshot{}, fmt.Errorf("decode room %d user %s: %w", chatID, userField, err)
			}
			e.ChatID = chatID
			if uid, err := strconv.ParseInt(userField, 10, 64); err == nil {
				e.UserID = uid
			}
			snap.Entries = append(snap.Entries, e)
		}
	}
	return snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	byRoom := make(map[int64][]any)
	for _, e := range snap.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		byRoom[e.ChatID] = append(byRoom[e.ChatID], strconv.FormatInt(e.UserID, 10), data)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for chatID, fields := range byRoom {
			key := s.roomKey(chatID)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields...)
			pipe.SAdd(ctx, s.roomsKey(), strconv.FormatInt(chatID, 10))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	return nil
}
