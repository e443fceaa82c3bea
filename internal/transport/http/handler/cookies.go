package handler

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

// refreshCookiePath scopes the refresh cookie to the auth routes.
const refreshCookiePath = "/auth"

// Cookies writes token cookies. The refresh token always travels in an
// HttpOnly cookie; the access token does too when cookies are an accepted
// token location. Each token cookie has a readable csrf companion for the
// double-submit header.
type Cookies struct {
	secure        bool
	sameSite      http.SameSite
	accessCookies bool
	nowF          func() time.Time
}

func NewCookies(cfg *config.Config) *Cookies {
	return &Cookies{
		secure:        cfg.CookieSecure,
		sameSite:      parseSameSite(cfg.CookieSameSite),
		accessCookies: slices.Contains(cfg.TokenLocations, middleware.LocationCookies),
		nowF:          time.Now,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SetTokens writes the cookies for every token of pair.
func (c *Cookies) SetTokens(w http.ResponseWriter, pair *domain.TokenPair) {
	if c.accessCookies {
		c.set(w, middleware.AccessCookie, middleware.CSRFAccessCookie, "/", pair.Access)
	}
	if pair.Refresh != nil {
		c.set(w, middleware.RefreshCookie, middleware.CSRFRefreshCookie, refreshCookiePath, *pair.Refresh)
	}
}

// set scopes the HttpOnly token cookie to path. The readable csrf companion
// lives on "/" so any page of the app can echo it in the CSRF header.
func (c *Cookies) set(w http.ResponseWriter, name, csrfName, path string, tok domain.IssuedToken) {
	maxAge := int(tok.ExpiresAt.Sub(c.nowF()) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name: name, Value: tok.Token, Path: path, MaxAge: maxAge,
		HttpOnly: true, Secure: c.secure, SameSite: c.sameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name: csrfName, Value: tok.CSRF, Path: "/", MaxAge: maxAge,
		Secure: c.secure, SameSite: c.sameSite,
	})
}

// Unset expires every token cookie.
func (c *Cookies) Unset(w http.ResponseWriter) {
	for _, ck := range []struct{ name, path string }{
		{middleware.AccessCookie, "/"},
		{middleware.CSRFAccessCookie, "/"},
		{middleware.RefreshCookie, refreshCookiePath},
		{middleware.CSRFRefreshCookie, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name: ck.name, Value: "", Path: ck.path, MaxAge: -1,
			HttpOnly: ck.name == middleware.AccessCookie || ck.name == middleware.RefreshCookie,
			Secure:   c.secure, SameSite: c.sameSite,
		})
	}
}
