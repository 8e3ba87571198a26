package domain

import "context"

// ResolutionSource records where a resolved identity came from.
type ResolutionSource string

const (
	ResolutionSourceStore ResolutionSource = "store"
	ResolutionSourceCache ResolutionSource = "cache"
)

// Identity is the resolved account snapshot for a phone number. It is owned
// by the account store; this subsystem caches it by value with a freshness
// bound and never mutates it.
type Identity struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	DisplayName      string           `json:"display_name"`
	IsActive         bool             `json:"is_active"`
	PhoneNumber      string           `json:"phone_number"` // normalized
	ResolutionSource ResolutionSource `json:"resolution_source"`
}

// IdentityStore is the persistence-side lookup collaborator.
// Implementations return ErrIdentityNotFound when no account matches.
type IdentityStore interface {
	LookupByPhone(ctx context.Context, normalizedPhone string) (Identity, error)
}
