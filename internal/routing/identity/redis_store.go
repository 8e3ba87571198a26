package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

const redisKeyPrefix = "identity:"

// RedisStore is a Store backed by Redis, for deployments where multiple
// routing workers should share one identity cache. Freshness is enforced by
// Redis key expiry, so reads past TTL are plain misses.
type RedisStore struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore creates a RedisStore and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.Identity, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, fmt.Errorf("redis get: %w", err)
	}

	var ident domain.Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten on the next Set.
		s.misses.Add(1)
		return domain.Identity{}, false, nil
	}
	s.hits.Add(1)
	return ident, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, ident domain.Identity, ttl time.Duration) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats() StoreStats {
	return StoreStats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		// Entry count would need a keyspace scan; not worth it for stats.
		Entries: -1,
	}
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
