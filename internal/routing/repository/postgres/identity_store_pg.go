package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

type identityStore struct {
	db *pgxpool.Pool
}

// NewIdentityStore creates the account-store lookup backed by PostgreSQL.
func NewIdentityStore(db *pgxpool.Pool) domain.IdentityStore {
	return &identityStore{db: db}
}

func (s *identityStore) LookupByPhone(ctx context.Context, normalizedPhone string) (domain.Identity, error) {
	query := `
		SELECT id, email, display_name, is_active, phone_number
		FROM accounts
		WHERE phone_number = $1
	`
	var ident domain.Identity
	err := s.db.QueryRow(ctx, query, normalizedPhone).Scan(
		&ident.ID, &ident.Email, &ident.DisplayName, &ident.IsActive, &ident.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, fmt.Errorf("failed to look up account by phone: %w", err)
	}
	ident.ResolutionSource = domain.ResolutionSourceStore
	return ident, nil
}
