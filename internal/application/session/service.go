// Package session issues, refreshes and revokes bearer tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	snsinfra "github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/pkg/password"
)

// dummyHash is compared against when the email is unknown so that both login
// failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, _ := password.Hash("no-such-account")
	return h
})

type TokenProvider interface {
	Issue(identity domain.Identity, typ domain.TokenType, fresh bool) (domain.IssuedToken, error)
	Parse(token string) (*jwtinfra.Claims, error)
	Verify(ctx context.Context, token string, opts jwtinfra.VerifyOptions) (*jwtinfra.Claims, error)
}

type Revoker interface {
	RevokeClaims(ctx context.Context, claims *jwtinfra.Claims) error
}

type CredentialStore interface {
	Get(ctx context.Context, email string) (*domain.Credential, error)
}

type EmployeeDirectory interface {
	Find(ctx context.Context, orgID, email string) (string, error)
}

// Profile is what /me reports about the caller.
type Profile struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	EmployeeID     string `json:"employee_id"`
}

type Service interface {
	// IssuePair mints a fresh access token and a refresh token for identity.
	IssuePair(ctx context.Context, identity domain.Identity) (*domain.TokenPair, error)
	Login(ctx context.Context, email, plainPassword string) (*domain.TokenPair, error)
	// Refresh mints a non-fresh access token from verified refresh claims.
	Refresh(ctx context.Context, refresh *jwtinfra.Claims) (*domain.TokenPair, error)
	// Logout revokes the access token and, when it verifies, the refresh token.
	Logout(ctx context.Context, access *jwtinfra.Claims, refreshToken string) error
	Me(ctx context.Context, claims *jwtinfra.Claims) (*Profile, error)
	// ForceRevoke lets an employer revoke any token of their own organization.
	ForceRevoke(ctx context.Context, actor *jwtinfra.Claims, token string) error
}

type service struct {
	tokens      TokenProvider
	revoker     Revoker
	credentials CredentialStore
	employees   EmployeeDirectory
	events      snsinfra.Publisher
	nowF        func() time.Time
}

func NewService(tokens TokenProvider, revoker Revoker, credentials CredentialStore, employees EmployeeDirectory, events snsinfra.Publisher) Service {
	return &service{
		tokens:      tokens,
		revoker:     revoker,
		credentials: credentials,
		employees:   employees,
		events:      events,
		nowF:        time.Now,
	}
}

func (s *service) IssuePair(_ context.Context, identity domain.Identity) (*domain.TokenPair, error) {
	access, err := s.tokens.Issue(identity, domain.TokenAccess, true)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(identity, domain.TokenRefresh, false)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{Access: access, Refresh: &refresh, Identity: identity}, nil
}

func (s *service) Login(ctx context.Context, email, plainPassword string) (*domain.TokenPair, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, fmt.Errorf("email and password are required: %w", domain.ErrBadRequest)
	}
	cred, err := s.credentials.Get(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	if cred == nil {
		password.Check(dummyHash(), plainPassword)
		return nil, domain.ErrInvalidCredentials
	}
	if !password.Check(cred.PasswordHash, plainPassword) {
		slog.Info("login failed", "email", email)
		return nil, domain.ErrInvalidCredentials
	}

	empID, err := s.employees.Find(ctx, cred.OrganizationID, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup employee: %w", err)
	}
	pair, err := s.IssuePair(ctx, domain.Identity{
		Email:          email,
		OrganizationID: cred.OrganizationID,
		Role:           cred.RoleOrDefault(),
		EmployeeID:     empID,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, domain.EventLogin, pair.Identity)
	slog.Info("login", "email", email, "org_id", cred.OrganizationID)
	return pair, nil
}

func (s *service) Refresh(_ context.Context, refresh *jwtinfra.Claims) (*domain.TokenPair, error) {
	if refresh.Type != domain.TokenRefresh {
		return nil, domain.ErrTypeMismatch
	}
	identity := refresh.Identity()
	access, err := s.tokens.Issue(identity, domain.TokenAccess, false)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{Access: access, Identity: identity}, nil
}

func (s *service) Logout(ctx context.Context, access *jwtinfra.Claims, refreshToken string) error {
	if err := s.revoker.RevokeClaims(ctx, access); err != nil {
		return err
	}
	if refreshToken != "" {
		refresh, err := s.tokens.Verify(ctx, refreshToken, jwtinfra.VerifyOptions{Type: domain.TokenRefresh})
		switch {
		case err == nil:
			if err := s.revoker.RevokeClaims(ctx, refresh); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrInternal):
			return err
		default:
			// Expired, revoked or foreign refresh tokens need no blacklist entry.
			slog.Debug("refresh token not revoked on logout", "err", err)
		}
	}
	s.emit(ctx, domain.EventLogout, access.Identity())
	slog.Info("logout", "email", access.Subject)
	return nil
}

func (s *service) Me(ctx context.Context, claims *jwtinfra.Claims) (*Profile, error) {
	cred, err := s.credentials.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Name:           domain.DisplayName(cred.Email),
		Email:          cred.Email,
		Role:           cred.RoleOrDefault(),
		OrganizationID: claims.OrgID,
		EmployeeID:     claims.EmpID,
	}, nil
}

func (s *service) ForceRevoke(ctx context.Context, actor *jwtinfra.Claims, token string) error {
	if actor.Role != domain.RoleEmployer {
		return domain.ErrForbidden
	}
	target, err := s.tokens.Parse(token)
	if errors.Is(err, domain.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("token to revoke: %w", domain.ErrBadRequest)
	}
	if target.OrgID != actor.OrgID {
		return fmt.Errorf("token belongs to another organization: %w", domain.ErrForbidden)
	}
	if err := s.revoker.RevokeClaims(ctx, target); err != nil {
		return err
	}
	s.emit(ctx, domain.EventTokenRevoked, target.Identity())
	slog.Info("token force-revoked", "by", actor.Subject, "subject", target.Subject, "type", target.Type)
	return nil
}

func (s *service) emit(ctx context.Context, typ string, identity domain.Identity) {
	snsinfra.Emit(ctx, s.events, domain.AuthEvent{
		Type:           typ,
		Email:          identity.Email,
		OrganizationID: identity.OrganizationID,
		OccurredAt:     s.nowF().UTC(),
	})
}
