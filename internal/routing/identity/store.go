// Package identity resolves phone numbers to account identities through a
// time-bounded cache over the account store.
package identity

import (
	"context"
	"time"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// StoreStats reports cache effectiveness for the operational surface.
type StoreStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Store is a typed cache of identity snapshots keyed by normalized phone
// number. Implementations must be safe for concurrent use; writes are
// idempotent upserts so last-write-wins is acceptable.
type Store interface {
	// Get returns the cached identity and true on a fresh hit. An entry past
	// its TTL is a miss, never stale data.
	Get(ctx context.Context, key string) (domain.Identity, bool, error)
	Set(ctx context.Context, key string, ident domain.Identity, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() StoreStats
}
