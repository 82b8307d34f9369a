package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/domain"
)

// RedisMessageCache stores serialized chat histories under a key prefix.
type RedisMessageCache struct {
	client *redis.Client
	prefix string
}

func NewRedisMessageCache(cfg config.RedisConfig) (*RedisMessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMessageCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (c *RedisMessageCache) key(chatID string) string {
	return fmt.Sprintf("%s:history:%s", c.prefix, chatID)
}

func (c *RedisMessageCache) Get(ctx context.Context, chatID string) ([]domain.Message, error) {
	data, err := c.client.Get(ctx, c.key(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []domain.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached history: %w", err)
	}
	return msgs, nil
}

func (c *RedisMessageCache) Set(ctx context.Context, chatID string, msgs []domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := c.client.Set(ctx, c.key(chatID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) Invalidate(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, c.key(chatID)).Err()
}

func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
