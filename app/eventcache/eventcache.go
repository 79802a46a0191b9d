// Package eventcache remembers gateway event ids that were already applied so
// redeliveries can be acknowledged without touching the ledger again.
package eventcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const keyPrefix = "billing:webhook:event:"

type Store interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, keyPrefix+eventID, 1, s.ttl).Err()
}

type MemoryStore struct {
	cache *lru.LRU[string, struct{}]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size < 16 {
		size = 16
	}
	return &MemoryStore{cache: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryStore) Seen(_ context.Context, eventID string) (bool, error) {
	return s.cache.Contains(eventID), nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, eventID string) error {
	s.cache.Add(eventID, struct{}{})
	return nil
}
