package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aswatji/serverchat/internal/metrics"
	"github.com/aswatji/serverchat/internal/models"
)

const recentTTL = 30 * 24 * time.Hour

// RedisStore handles Redis operations for rate limiting and the recent-chats read model.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// recentChatsKey returns the key for a user's recent-chats sorted set.
func recentChatsKey(userID string) string {
	return fmt.Sprintf("user:%s:recent", userID)
}

// lastMessageKey returns the key for a chat's last message.
func lastMessageKey(chatID string) string {
	return fmt.Sprintf("chat:%s:last", chatID)
}

// RecentChat is one entry of a user's recent-chats read model.
type RecentChat struct {
	ChatID       string          `json:"chat_id"`
	LastActivity time.Time       `json:"last_activity"`
	LastMessage  *models.Message `json:"last_message,omitempty"`
}

// RecordLastMessage projects a persisted message into the read model of both participants.
func (s *RedisStore) RecordLastMessage(ctx context.Context, chat *models.Chat, msg *models.Message) error {
	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	score := float64(msg.SentAt.UnixMilli())
	pipe := s.client.TxPipeline()
	for _, uid := range []string{chat.User1ID, chat.User2ID} {
		key := recentChatsKey(uid)
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: chat.ID})
		pipe.Expire(ctx, key, recentTTL)
	}
	pipe.Set(ctx, lastMessageKey(chat.ID), data, recentTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentChats returns a user's chats ordered by last activity, newest first.
func (s *RedisStore) RecentChats(ctx context.Context, userID string, limit int) ([]RecentChat, error) {
	if limit <= 0 {
		limit = 20
	}

	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	entries, err := s.client.ZRevRangeWithScores(ctx, recentChatsKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	recent := make([]RecentChat, 0, len(entries))
	if len(entries) == 0 {
		return recent, nil
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		chatID, _ := e.Member.(string)
		keys[i] = lastMessageKey(chatID)
		recent = append(recent, RecentChat{
			ChatID:       chatID,
			LastActivity: time.UnixMilli(int64(e.Score)).UTC(),
		})
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		recent[i].LastMessage = &msg
	}

	return recent, nil
}
