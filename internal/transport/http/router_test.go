package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/registration"
	"github.com/go-auth-nosql/internal/application/revocation"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/infrastructure/jwt/jwttest"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	snsinfra "github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/obs"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// directory stands in for both DynamoDB tables.
type directory struct {
	mu          sync.Mutex
	credentials map[string]domain.Credential
	employees   map[string]string
}

func newDirectory() *directory {
	return &directory{credentials: map[string]domain.Credential{}, employees: map[string]string{}}
}

func (d *directory) Get(_ context.Context, email string) (*domain.Credential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.credentials[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (d *directory) Insert(_ context.Context, c *domain.Credential) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.credentials[c.Email]; ok {
		return domain.ErrConflict
	}
	d.credentials[c.Email] = *c
	return nil
}

func (d *directory) UpdatePassword(_ context.Context, email, hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.credentials[email]
	if !ok {
		return false, nil
	}
	c.PasswordHash = hash
	d.credentials[email] = c
	return true, nil
}

func (d *directory) ResolveOrCreate(_ context.Context, email, orgID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := orgID + "/" + email
	if id, ok := d.employees[key]; ok {
		return id, nil
	}
	d.employees[key] = orgID + "-AB12"
	return d.employees[key], nil
}

func (d *directory) Find(_ context.Context, orgID, email string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.employees[orgID+"/"+email]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (d *directory) promote(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.credentials[email]
	c.Role = domain.RoleEmployer
	d.credentials[email] = c
}

type inbox struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (i *inbox) SendEmail(_ context.Context, to, _, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bodies[to] = body
	return nil
}

func (i *inbox) last(to string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bodies[to]
}

// --- harness ---

type app struct {
	t       *testing.T
	handler http.Handler
	dir     *directory
	inbox   *inbox
	metrics *obs.Metrics
}

func newApp(t *testing.T) *app {
	t.Helper()
	cfg := jwttest.Config(t)
	cfg.TokenLocations = []string{middleware.LocationHeaders, middleware.LocationCookies}
	cfg.CookieSameSite = "Lax"
	cfg.CookieCSRFProtect = true
	cfg.OTPLength = 6
	cfg.OTPTTL = time.Minute
	cfg.OrgAssociationTTL = 5 * time.Minute
	cfg.VerifiedTTL = 5 * time.Minute
	cfg.ResetTokenMaxAge = 5 * time.Minute
	cfg.ResetSingleUse = true
	cfg.FrontendURL = "http://front.test"
	cfg.BurstRate = 1000
	cfg.BurstSize = 1000
	cfg.AllowedOrigins = []string{"http://front.test"}
	cfg.RateLimits.Default = "1000 per hour"
	cfg.RateLimits.Registration = "5 per hour;20 per day"
	cfg.RateLimits.Complete = "5 per hour;20 per day"
	cfg.RateLimits.Login = "5 per hour;20 per day"
	cfg.RateLimits.Reset = "5 per hour;10 per day"

	store := memory.NewStore()
	revoker := revocation.NewService(store, nil)
	tokens := jwttest.NewProvider(t, jwtinfra.WithRevocationChecker(revoker))
	signer, err := jwtinfra.NewResetSigner("secret", "salt", nil)
	require.NoError(t, err)
	policies, err := ratelimit.PoliciesFromConfig(cfg.RateLimits)
	require.NoError(t, err)

	a := &app{t: t, dir: newDirectory(), inbox: &inbox{bodies: map[string]string{}}, metrics: obs.NewMetrics()}
	deps := &Deps{
		Registration: registration.NewService(cfg, store, a.dir, a.dir, a.inbox, snsinfra.Discard{},
			registration.WithCodeGenerator(func(int) (string, error) { return "123456", nil })),
		Sessions:  session.NewService(tokens, revoker, a.dir, a.dir, snsinfra.Discard{}),
		Passwords: password.NewService(cfg, signer, a.dir, store, a.inbox, snsinfra.Discard{}),
		Tokens:    tokens,
		Limiter:   ratelimit.NewLimiter(store, nil),
		Policies:  policies,
		Metrics:   a.metrics,
		Stores:    nil,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a.handler = NewRouter(ctx, cfg, deps)
	return a
}

type call struct {
	method, path, body string
	bearer             string
	cookies            []*http.Cookie
	csrf               string
	headers            map[string]string
}

func (a *app) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, c.csrf)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// register runs the three registration steps and returns the completion response.
func (a *app) register(email, org, pw string) *httptest.ResponseRecorder {
	a.t.Helper()
	rr := a.do(call{method: http.MethodPost, path: "/auth/register?org_id=" + org, body: `{"email":"` + email + `"}`})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	rr = a.do(call{method: http.MethodPost, path: "/auth/verify-otp", body: `{"email":"` + email + `","otp":"123456"}`})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	return a.do(call{method: http.MethodPost, path: "/auth/complete-registration", body: `{"email":"` + email + `","password":"` + pw + `"}`})
}

// --- tests ---

func TestRouter_RegistrationToLogout(t *testing.T) {
	a := newApp(t)

	rr := a.do(call{method: http.MethodPost, path: "/auth/register?org_id=ORG1", body: `{"email":"alice@x.com"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OTP sent to email", decodeBody(t, rr)["msg"])
	assert.Contains(t, a.inbox.last("alice@x.com"), "123456")

	rr = a.do(call{method: http.MethodPost, path: "/auth/complete-registration", body: `{"email":"alice@x.com","password":"Passw0rd!"}`})
	assert.Equal(t, http.StatusForbidden, rr.Code, "not verified yet")

	rr = a.do(call{method: http.MethodPost, path: "/auth/verify-otp", body: `{"email":"alice@x.com","otp":"000000"}`})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid OTP", decodeBody(t, rr)["error"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/verify-otp", body: `{"email":"alice@x.com","otp":"123456"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OTP verified", decodeBody(t, rr)["msg"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/verify-otp", body: `{"email":"alice@x.com","otp":"123456"}`})
	assert.Equal(t, http.StatusGone, rr.Code, "codes are single use")

	rr = a.do(call{method: http.MethodPost, path: "/auth/complete-registration", body: `{"email":"alice@x.com","password":"Passw0rd!"}`})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "Registration complete", body["msg"])
	access := body["access_token"]
	require.NotEmpty(t, access)
	refresh := cookieNamed(rr, middleware.RefreshCookie)
	csrf := cookieNamed(rr, middleware.CSRFRefreshCookie)
	require.NotNil(t, refresh)
	require.NotNil(t, csrf)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/auth", refresh.Path)
	assert.Equal(t, "/", csrf.Path)
	assert.Equal(t, http.SameSiteLaxMode, refresh.SameSite)

	rr = a.do(call{method: http.MethodGet, path: "/auth/me", bearer: access})
	require.Equal(t, http.StatusOK, rr.Code)
	me := decodeBody(t, rr)
	assert.Equal(t, "alice", me["name"])
	assert.Equal(t, "employee", me["role"])
	assert.Equal(t, "ORG1", me["organization_id"])
	assert.Equal(t, "ORG1-AB12", me["employee_id"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{refresh}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "cookie refresh needs the csrf header")

	rr = a.do(call{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{refresh}, csrf: csrf.Value})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decodeBody(t, rr)["access_token"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/logout", bearer: access, cookies: []*http.Cookie{refresh}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Access and refresh tokens blacklisted", decodeBody(t, rr)["msg"])
	cleared := cookieNamed(rr, middleware.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Equal(t, "", cleared.Value)

	rr = a.do(call{method: http.MethodGet, path: "/auth/me", bearer: access})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = a.do(call{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{refresh}, csrf: csrf.Value})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), domain.ErrTokenRevoked.Error())
}

func TestRouter_RegisterValidation(t *testing.T) {
	a := newApp(t)

	rr := a.do(call{method: http.MethodPost, path: "/auth/register", body: `{"email":"alice@x.com"}`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = a.do(call{method: http.MethodPost, path: "/auth/register?org_id=ORG1", body: `{"email":"not-an-email"}`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = a.do(call{method: http.MethodPost, path: "/auth/register?org_id=ORG1", body: `{`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.Equal(t, http.StatusCreated, a.register("alice@x.com", "ORG1", "Passw0rd!").Code)
	rr = a.do(call{method: http.MethodPost, path: "/auth/register?org_id=ORG1", body: `{"email":"alice@x.com"}`})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRouter_LoginRateLimit(t *testing.T) {
	a := newApp(t)
	require.Equal(t, http.StatusCreated, a.register("bob@x.com", "ORG1", "Passw0rd!").Code)

	for i := 0; i < 5; i++ {
		rr := a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"bob@x.com","password":"wrong"}`})
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid credentials", decodeBody(t, rr)["error"])
	}
	rr := a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"bob@x.com","password":"Passw0rd!"}`})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"carol@x.com","password":"x"}`})
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "other identities keep their own budget")
}

func TestRouter_LoginRateLimitIgnoresForwardedHeaders(t *testing.T) {
	a := newApp(t)

	codes := make([]int, 0, 8)
	for i := 1; i <= 8; i++ {
		rr := a.do(call{
			method:  http.MethodPost,
			path:    "/auth/login",
			body:    `{"email":"victim@x.com","password":"guess"}`,
			headers: map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i), "X-Real-IP": fmt.Sprintf("198.51.100.%d", i)},
		})
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{401, 401, 401, 401, 401, 429, 429, 429}, codes)
}

func TestRouter_MultibytePasswordOverLimit(t *testing.T) {
	a := newApp(t)

	rr := a.register("bob@x.com", "ORG1", strings.Repeat("€", 30))
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = a.do(call{method: http.MethodPost, path: "/auth/complete-registration", body: `{"email":"bob@x.com","password":"` + strings.Repeat("€", 24) + `"}`})
	assert.Equal(t, http.StatusCreated, rr.Code, "72 bytes is accepted")
}

func TestRouter_LoginUnknownUserMatchesWrongPassword(t *testing.T) {
	a := newApp(t)
	require.Equal(t, http.StatusCreated, a.register("bob@x.com", "ORG1", "Passw0rd!").Code)

	wrong := a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"bob@x.com","password":"nope"}`})
	unknown := a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"nobody@x.com","password":"nope"}`})
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

var resetLink = regexp.MustCompile(`/login/reset-password/([^"]+)`)

func TestRouter_PasswordReset(t *testing.T) {
	a := newApp(t)
	require.Equal(t, http.StatusCreated, a.register("alice@x.com", "ORG1", "Passw0rd!").Code)

	rr := a.do(call{method: http.MethodPost, path: "/auth/forgot-password", body: `{"email":"nobody@x.com"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Password reset link sent", decodeBody(t, rr)["message"])
	assert.Empty(t, a.inbox.last("nobody@x.com"))

	rr = a.do(call{method: http.MethodPost, path: "/auth/forgot-password", body: `{"email":"alice@x.com"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	m := resetLink.FindStringSubmatch(a.inbox.last("alice@x.com"))
	require.Len(t, m, 2)
	token := m[1]

	rr = a.do(call{method: http.MethodGet, path: "/auth/reset-password/" + token})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice@x.com", decodeBody(t, rr)["email"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/reset-password/" + token, body: `{}`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Password is required.", decodeBody(t, rr)["error"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/reset-password/" + token, body: `{"password":"N3wPassw0rd!"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Password has been reset successfully.", decodeBody(t, rr)["message"])

	rr = a.do(call{method: http.MethodPost, path: "/auth/reset-password/" + token, body: `{"password":"again"}`})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "The link is invalid or has expired.", decodeBody(t, rr)["error"])

	rr = a.do(call{method: http.MethodGet, path: "/auth/reset-password/garbage"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"alice@x.com","password":"N3wPassw0rd!"}`})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_RevokeIsEmployerOnly(t *testing.T) {
	a := newApp(t)
	rr := a.register("alice@x.com", "ORG1", "Passw0rd!")
	require.Equal(t, http.StatusCreated, rr.Code)
	access := decodeBody(t, rr)["access_token"]

	rr = a.do(call{method: http.MethodPost, path: "/auth/revoke", bearer: access, body: `{"token":"` + access + `"}`})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newApp(t)

	rr := a.do(call{method: http.MethodGet, path: "/health-check/ping"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", decodeBody(t, rr)["message"])

	rr = a.do(call{method: http.MethodGet, path: "/health-check/ready"})
	assert.Equal(t, http.StatusOK, rr.Code)

	a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"x@x.com","password":"x"}`})
	rr = a.do(call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `auth_operations_total{operation="login",outcome="invalid_credentials"} 1`)
	assert.Contains(t, rr.Body.String(), `route="/auth/login"`)
}

func TestRouter_RevokeRequiresFreshEmployerToken(t *testing.T) {
	a := newApp(t)
	require.Equal(t, http.StatusCreated, a.register("boss@x.com", "ORG1", "Passw0rd!").Code)
	rr := a.register("alice@x.com", "ORG1", "Passw0rd!")
	require.Equal(t, http.StatusCreated, rr.Code)
	target := decodeBody(t, rr)["access_token"]
	a.dir.promote("boss@x.com")

	rr = a.do(call{method: http.MethodPost, path: "/auth/login", body: `{"email":"boss@x.com","password":"Passw0rd!"}`})
	require.Equal(t, http.StatusOK, rr.Code)
	fresh := decodeBody(t, rr)["access_token"]
	refresh := cookieNamed(rr, middleware.RefreshCookie)
	require.NotNil(t, refresh)

	rr = a.do(call{method: http.MethodPost, path: "/auth/refresh", bearer: refresh.Value})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stale := decodeBody(t, rr)["access_token"]

	revoke := `{"token":"` + target + `"}`
	rr = a.do(call{method: http.MethodPost, path: "/auth/revoke", bearer: stale, body: revoke})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), domain.ErrTokenNotFresh.Error())

	rr = a.do(call{method: http.MethodPost, path: "/auth/revoke", bearer: fresh, body: revoke})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Token revoked", decodeBody(t, rr)["msg"])

	rr = a.do(call{method: http.MethodGet, path: "/auth/me", bearer: target})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
