package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Token locations accepted by Authenticate.
const (
	LocationHeaders = "headers"
	LocationCookies = "cookies"
)

const (
	AccessCookie      = "access_token_cookie"
	RefreshCookie     = "refresh_token_cookie"
	CSRFAccessCookie  = "csrf_access_token"
	CSRFRefreshCookie = "csrf_refresh_token"
	CSRFHeader        = "X-CSRF-TOKEN"
)

// Verifier is satisfied by *jwtinfra.Provider.
type Verifier interface {
	Verify(ctx context.Context, token string, opts jwtinfra.VerifyOptions) (*jwtinfra.Claims, error)
}

// AuthOptions declares where a route looks for its token and what it accepts.
type AuthOptions struct {
	Locations []string
	// Optional lets requests without any token through unauthenticated.
	// A token that is present but fails verification is still rejected.
	Optional     bool
	Type         domain.TokenType
	RequireFresh bool
	CSRFProtect  bool
}

// Authenticate returns middleware that verifies the bearer JWT found in the
// declared locations and injects its claims into the context.
func Authenticate(v Verifier, opts AuthOptions) func(http.Handler) http.Handler {
	if opts.Type == "" {
		opts.Type = domain.TokenAccess
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, location, err := extractToken(r, opts)
			if err != nil {
				if errors.Is(err, domain.ErrTokenMissing) && opts.Optional {
					next.ServeHTTP(w, r)
					return
				}
				writeJSONError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := v.Verify(r.Context(), token, jwtinfra.VerifyOptions{Type: opts.Type, RequireFresh: opts.RequireFresh})
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, domain.ErrInternal) {
					status = http.StatusInternalServerError
				}
				writeJSONError(w, status, err.Error())
				return
			}
			if location == LocationCookies && opts.CSRFProtect && !safeMethod(r.Method) {
				if !csrfMatches(r.Header.Get(CSRFHeader), claims.CSRF) {
					writeJSONError(w, http.StatusUnauthorized, domain.ErrCSRF.Error())
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims)))
		})
	}
}

// extractToken looks in each declared location in order and never outside them.
func extractToken(r *http.Request, opts AuthOptions) (token, location string, err error) {
	for _, loc := range opts.Locations {
		switch loc {
		case LocationHeaders:
			h := r.Header.Get("Authorization")
			if h == "" {
				continue
			}
			bearer, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(bearer) == "" {
				return "", "", errors.New("authorization header must be 'Bearer <token>'")
			}
			return strings.TrimSpace(bearer), LocationHeaders, nil
		case LocationCookies:
			c, err := r.Cookie(CookieFor(opts.Type))
			if err != nil || c.Value == "" {
				continue
			}
			return c.Value, LocationCookies, nil
		}
	}
	return "", "", domain.ErrTokenMissing
}

// CookieFor names the cookie that carries tokens of type typ.
func CookieFor(typ domain.TokenType) string {
	if typ == domain.TokenRefresh {
		return RefreshCookie
	}
	return AccessCookie
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func csrfMatches(header, claim string) bool {
	if header == "" || claim == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(claim)) == 1
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

