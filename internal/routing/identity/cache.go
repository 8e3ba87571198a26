package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/textroute/smsrouter/internal/routing/domain"
	"github.com/textroute/smsrouter/internal/routing/phone"
)

// DefaultTTL is the freshness bound for cached identities.
const DefaultTTL = time.Hour

// Cache resolves raw phone strings to identities, consulting the Store first
// and falling back to the account store on a miss or expiry.
type Cache struct {
	normalizer *phone.Normalizer
	store      Store
	lookup     domain.IdentityStore
	ttl        time.Duration
	logger     *slog.Logger
}

// NewCache creates a Cache. A non-positive ttl falls back to DefaultTTL.
func NewCache(normalizer *phone.Normalizer, store Store, lookup domain.IdentityStore, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		normalizer: normalizer,
		store:      store,
		lookup:     lookup,
		ttl:        ttl,
		logger:     logger.With("component", "identity_cache"),
	}
}

// Resolve maps a raw phone string to its identity. It fails fast on
// unparseable input, serves fresh cache hits, and on a miss consults the
// account store, caching positive results with a fresh TTL. Negative lookups
// are not cached. A failing cache store degrades to a direct lookup.
func (c *Cache) Resolve(ctx context.Context, rawPhone string) (domain.Identity, error) {
	normalized, err := c.normalizer.Normalize(rawPhone)
	if err != nil {
		return domain.Identity{}, err
	}

	cached, found, err := c.store.Get(ctx, normalized)
	if err != nil {
		c.logger.WarnContext(ctx, "Identity cache read failed, falling back to store lookup",
			"phone", normalized, "error", err)
	} else if found {
		cached.ResolutionSource = domain.ResolutionSourceCache
		return cached, nil
	}

	ident, err := c.lookup.LookupByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, fmt.Errorf("identity lookup for %s: %w", normalized, err)
	}
	ident.PhoneNumber = normalized
	ident.ResolutionSource = domain.ResolutionSourceStore

	if err := c.store.Set(ctx, normalized, ident, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "Identity cache write failed", "phone", normalized, "error", err)
	}
	return ident, nil
}

// Invalidate removes the cached entry for a phone number, e.g. after the
// number-to-account mapping changes.
func (c *Cache) Invalidate(ctx context.Context, rawPhone string) error {
	normalized, err := c.normalizer.Normalize(rawPhone)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, normalized)
}

// Stats exposes the underlying store's hit/miss counters.
func (c *Cache) Stats() StoreStats {
	return c.store.Stats()
}
