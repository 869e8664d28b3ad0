package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func messagesKey(keyword string) string { return "room:" + keyword + ":messages" }
func metadataKey(keyword string) string { return "room:" + keyword + ":metadata" }
func lockKey(keyword string) string     { return "room:" + keyword + ":locked" }

// RedisStore persists room state in Redis: the message log as a list,
// metadata as a JSON string, and the lock flag as "0"/"1".
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// LoadMessages reads the full stored log for the keyword.
func (s *RedisStore) LoadMessages(ctx context.Context, keyword string) ([]Message, error) {
	vals, err := s.client.LRange(ctx, messagesKey(keyword), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load messages: %w", err)
	}
	msgs := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			// A corrupt entry is skipped rather than poisoning the room.
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AppendMessage pushes one message onto the room's list, trimming to max.
func (s *RedisStore) AppendMessage(ctx context.Context, keyword string, msg Message, max int) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal message: %w", err)
	}
	key := messagesKey(keyword)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if max > 0 {
		pipe.LTrim(ctx, key, int64(-max), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append message: %w", err)
	}
	return nil
}

// ClearMessages deletes the room's message list.
func (s *RedisStore) ClearMessages(ctx context.Context, keyword string) error {
	if err := s.client.Del(ctx, messagesKey(keyword)).Err(); err != nil {
		return fmt.Errorf("redis: clear messages: %w", err)
	}
	return nil
}

// LoadMetadata reads the room metadata, or nil if the room was never created.
func (s *RedisStore) LoadMetadata(ctx context.Context, keyword string) (*Metadata, error) {
	val, err := s.client.Get(ctx, metadataKey(keyword)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(val), &meta); err != nil {
		return nil, fmt.Errorf("redis: decode metadata: %w", err)
	}
	return &meta, nil
}

// SaveMetadata writes the room metadata as JSON.
func (s *RedisStore) SaveMetadata(ctx context.Context, keyword string, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: marshal metadata: %w", err)
	}
	if err := s.client.Set(ctx, metadataKey(keyword), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save metadata: %w", err)
	}
	return nil
}

// LoadLock reads the persisted lock flag.
func (s *RedisStore) LoadLock(ctx context.Context, keyword string) (bool, error) {
	val, err := s.client.Get(ctx, lockKey(keyword)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: load lock: %w", err)
	}
	return val == "1", nil
}

// SaveLock persists the lock flag.
func (s *RedisStore) SaveLock(ctx context.Context, keyword string, locked bool) error {
	val := "0"
	if locked {
		val = "1"
	}
	if err := s.client.Set(ctx, lockKey(keyword), val, 0).Err(); err != nil {
		return fmt.Errorf("redis: save lock: %w", err)
	}
	return nil
}

// DeleteRoom removes all three records for the keyword.
func (s *RedisStore) DeleteRoom(ctx context.Context, keyword string) error {
	keys := []string{messagesKey(keyword), metadataKey(keyword), lockKey(keyword)}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: delete room: %w", err)
	}
	return nil
}
