package jwtinfra

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	pkgtoken "github.com/go-auth-nosql/internal/pkg/token"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields.
type Claims struct {
	Type  domain.TokenType `json:"type"`
	OrgID string           `json:"org_id"`
	Role  string           `json:"role"`
	EmpID string           `json:"emp_id"`
	Fresh bool             `json:"fresh"`
	CSRF  string           `json:"csrf,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the session attributes carried by the token.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		Email:          c.Subject,
		OrganizationID: c.OrgID,
		Role:           c.Role,
		EmployeeID:     c.EmpID,
	}
}

// Remaining is the time left until the token expires naturally.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// RevocationChecker reports whether a jti has been blacklisted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type noRevocations struct{}

func (noRevocations) IsRevoked(context.Context, string) (bool, error) { return false, nil }

// VerifyOptions narrows what Verify accepts. An empty Type accepts either kind.
type VerifyOptions struct {
	Type         domain.TokenType
	RequireFresh bool
}

// Provider signs and verifies RS256 access and refresh tokens.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	lifetimes  map[domain.TokenType]time.Duration
	revoked    RevocationChecker
	nowF       func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.nowF = now }
}

func WithRevocationChecker(rc RevocationChecker) Option {
	return func(p *Provider) { p.revoked = rc }
}

func NewProvider(cfg *config.Config, opts ...Option) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	p := &Provider{
		privateKey: privKey,
		publicKey:  pubKey,
		issuer:     cfg.JWTIssuer,
		lifetimes: map[domain.TokenType]time.Duration{
			domain.TokenAccess:  cfg.AccessTokenTTL,
			domain.TokenRefresh: cfg.RefreshTokenTTL,
		},
		revoked: noRevocations{},
		nowF:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Issue mints a token of the given type for identity. Every token gets a new jti.
func (p *Provider) Issue(identity domain.Identity, typ domain.TokenType, fresh bool) (domain.IssuedToken, error) {
	ttl, ok := p.lifetimes[typ]
	if !ok {
		return domain.IssuedToken{}, fmt.Errorf("issue %q token: %w", typ, domain.ErrBadRequest)
	}
	csrf, err := pkgtoken.Random(16)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	now := p.nowF()
	claims := Claims{
		Type:  typ,
		OrgID: identity.OrganizationID,
		Role:  identity.Role,
		EmpID: identity.EmployeeID,
		Fresh: fresh && typ == domain.TokenAccess,
		CSRF:  csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New(),
			Subject:   identity.Email,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.IssuedToken{
		Token:     signed,
		JTI:       claims.ID,
		Type:      typ,
		CSRF:      csrf,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse checks signature, issuer and time bounds only.
func (p *Provider) Parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, domain.ErrTokenMissing
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(p.nowF),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("verify token: %w", domain.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w: %v", domain.ErrTokenMalformed, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" || !claims.Type.Valid() {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrTokenMalformed)
	}
	return claims, nil
}

// Verify parses the token and then enforces type, freshness and revocation.
func (p *Provider) Verify(ctx context.Context, tokenStr string, opts VerifyOptions) (*Claims, error) {
	claims, err := p.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if opts.Type != "" && claims.Type != opts.Type {
		return nil, fmt.Errorf("expected %s token, got %s: %w", opts.Type, claims.Type, domain.ErrTypeMismatch)
	}
	if opts.RequireFresh && !claims.Fresh {
		return nil, domain.ErrTokenNotFresh
	}
	revoked, err := p.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation lookup: %w: %v", domain.ErrInternal, err)
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}
	return claims, nil
}
