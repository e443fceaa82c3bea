package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

const keyPrefix = "BLACKLISTED:"

// Store is the slice of the ephemeral store the blacklist needs.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Service records revoked jtis for the rest of their natural lifetime.
// It satisfies jwtinfra.RevocationChecker.
type Service struct {
	store Store
	nowF  func() time.Time
}

func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, nowF: now}
}

func Key(jti string) string { return keyPrefix + jti }

// Revoke blacklists jti for ttl. A non-positive ttl means the token has already
// expired on its own and nothing is written.
func (s *Service) Revoke(ctx context.Context, jti string, typ domain.TokenType, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("revoke: empty jti: %w", domain.ErrBadRequest)
	}
	if ttl <= 0 {
		return nil
	}
	// Sub-second remainders would round to no expiry at all.
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.store.Set(ctx, Key(jti), string(typ), ttl); err != nil {
		return fmt.Errorf("revoke %s token: %w", typ, err)
	}
	slog.Debug("token revoked", "type", typ, "ttl", ttl)
	return nil
}

// RevokeClaims revokes a verified token using the lifetime left on its exp claim.
func (s *Service) RevokeClaims(ctx context.Context, claims *jwtinfra.Claims) error {
	return s.Revoke(ctx, claims.ID, claims.Type, claims.Remaining(s.nowF()))
}

func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ok, err := s.store.Exists(ctx, Key(jti))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return ok, nil
}
