// Package memorystore persists conversation memory outside the process.
package memorystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/conversation"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisMemory is a ports.ConversationMemory stored in a Redis list capped at
// capacity entries. The list expires ttl after the last append.
type RedisMemory struct {
	rdb      redis.Cmdable
	key      string
	capacity int
	ttl      time.Duration
}

// NewRedisMemory returns the memory of one session.
func NewRedisMemory(rdb redis.Cmdable, sessionID string, capacity int, ttl time.Duration) *RedisMemory {
	if capacity < 1 {
		capacity = conversation.DefaultWindow
	}
	return &RedisMemory{rdb: rdb, key: Key(sessionID), capacity: capacity, ttl: ttl}
}

// Key is the Redis key holding a session's turns.
func Key(sessionID string) string {
	return "kv:session:" + sessionID + ":turns"
}

// Append pushes and trims atomically.
func (m *RedisMemory) Append(ctx context.Context, turn entities.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encoding turn: %w", err)
	}

	pipe := m.rdb.TxPipeline()
	pipe.RPush(ctx, m.key, data)
	pipe.LTrim(ctx, m.key, int64(-m.capacity), -1)
	if m.ttl > 0 {
		pipe.Expire(ctx, m.key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

func (m *RedisMemory) Recent(ctx context.Context, n int) ([]entities.Turn, error) {
	if n < 1 || n > m.capacity {
		n = m.capacity
	}
	raw, err := m.rdb.LRange(ctx, m.key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	return decodeTurns(raw)
}

func (m *RedisMemory) Clear(ctx context.Context) error {
	return m.rdb.Del(ctx, m.key).Err()
}

func (m *RedisMemory) Len(ctx context.Context) (int, error) {
	n, err := m.rdb.LLen(ctx, m.key).Result()
	return int(n), err
}

func (m *RedisMemory) Capacity() int { return m.capacity }

func decodeTurns(raw []string) ([]entities.Turn, error) {
	turns := make([]entities.Turn, 0, len(raw))
	for _, r := range raw {
		var t entities.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
