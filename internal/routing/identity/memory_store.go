package identity

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// MemoryStore is an in-process Store backed by a TTL cache with opportunistic
// background eviction.
type MemoryStore struct {
	cache  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryStore creates a MemoryStore. defaultTTL bounds entry freshness;
// expired entries are also purged in the background every 2×defaultTTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(defaultTTL, 2*defaultTTL),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (domain.Identity, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		s.misses.Add(1)
		return domain.Identity{}, false, nil
	}
	ident, ok := v.(domain.Identity)
	if !ok {
		s.misses.Add(1)
		return domain.Identity{}, false, nil
	}
	s.hits.Add(1)
	return ident, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, ident domain.Identity, ttl time.Duration) error {
	s.cache.Set(key, ident, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) Stats() StoreStats {
	return StoreStats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Entries: s.cache.ItemCount(),
	}
}
