package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ policies []string }

func (r *recorder) RateLimited(policy string) { r.policies = append(r.policies, policy) }

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func loginPolicy(t *testing.T) ratelimit.Policy {
	t.Helper()
	p, err := ratelimit.NewPolicy("login", "2 per minute", ratelimit.IPAndIdentity)
	require.NoError(t, err)
	return p
}

func TestQuota_RejectsWithRetryAfter(t *testing.T) {
	clock := memory.NewClock(time.Unix(1_700_000_000, 0))
	limiter := ratelimit.NewLimiter(memory.NewStore(memory.WithClock(clock.Now)), clock.Now)
	rec := &recorder{}
	h := Quota(limiter, loginPolicy(t), rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, strings.ToLower(string(body)), "alice@x.com", "body must survive the peek")
		w.WriteHeader(http.StatusOK)
	}))

	post := func(email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"`+email+`","password":"x"}`))
		req.RemoteAddr = "10.0.0.1:1000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, post("alice@x.com").Code)
	assert.Equal(t, http.StatusOK, post("Alice@x.com").Code)
	rr := post("alice@x.com")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, []string{"login"}, rec.policies)

	clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, post("alice@x.com").Code)
}

func TestQuota_IdentityIsPartOfTheKey(t *testing.T) {
	limiter := ratelimit.NewLimiter(memory.NewStore(), nil)
	h := Quota(limiter, loginPolicy(t), nil)(http.HandlerFunc(okHandler))

	for _, email := range []string{"a@x.com", "a@x.com", "b@x.com", "b@x.com"} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"`+email+`"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, email)
	}
}

func TestQuota_StoreFailureFailsClosed(t *testing.T) {
	limiter := ratelimit.NewLimiter(brokenCounter{}, nil)
	h := Quota(limiter, loginPolicy(t), nil)(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestPeekEmail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	assert.Equal(t, "", peekEmail(req))
	body, _ := io.ReadAll(req.Body)
	assert.Equal(t, "not json", string(body))

	assert.Equal(t, "", peekEmail(httptest.NewRequest(http.MethodGet, "/", nil)))
}
