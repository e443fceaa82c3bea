// Package ratelimit implements fixed-window request counters keyed by network
// address, identity, or both.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// Anonymous stands in for the identity of callers that gave none.
const Anonymous = "unauthenticated"

// Counter is an atomic increment with expiry.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Subject is what a key function can see about a request.
type Subject struct {
	IP       string
	Identity string
}

// ResolveIdentity prefers the authenticated subject, then the submitted email.
func ResolveIdentity(authenticated, submitted string) string {
	if authenticated != "" {
		return authenticated
	}
	if submitted != "" {
		return domain.NormalizeEmail(submitted)
	}
	return Anonymous
}

type KeyFunc func(Subject) string

func IPOnly(s Subject) string { return s.IP }

func IdentityOnly(s Subject) string {
	if s.Identity == "" {
		return Anonymous
	}
	return s.Identity
}

func IPAndIdentity(s Subject) string { return s.IP + ":" + IdentityOnly(s) }

// Policy is a named set of limits sharing one key function.
type Policy struct {
	Name   string
	Limits []Limit
	Key    KeyFunc
}

// NewPolicy parses expr into a policy. It fails on malformed expressions.
func NewPolicy(name, expr string, key KeyFunc) (Policy, error) {
	limits, err := ParseLimits(expr)
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", name, err)
	}
	return Policy{Name: name, Limits: limits, Key: key}, nil
}

type Limiter struct {
	counter Counter
	nowF    func() time.Time
}

func NewLimiter(counter Counter, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{counter: counter, nowF: now}
}

// Allow records one hit against every limit of p and fails with a
// *domain.RateLimitError when any of them is exceeded.
func (l *Limiter) Allow(ctx context.Context, p Policy, s Subject) error {
	key := p.Key(s)
	now := l.nowF().Unix()
	var exceeded *domain.RateLimitError
	for _, lim := range p.Limits {
		window := int64(lim.Window / time.Second)
		if window <= 0 {
			window = 1
		}
		index := now / window
		resetIn := (index+1)*window - now
		counterKey := fmt.Sprintf("LIMITER:%s:%s:%d:%d", p.Name, key, window, index)

		n, err := l.counter.Incr(ctx, counterKey, time.Duration(resetIn)*time.Second)
		if err != nil {
			return fmt.Errorf("rate limit %s: %w", p.Name, err)
		}
		if n > lim.Count && (exceeded == nil || resetIn > exceeded.RetryAfter) {
			exceeded = &domain.RateLimitError{Limit: lim.String(), RetryAfter: resetIn}
		}
	}
	if exceeded != nil {
		slog.Info("rate limited", "policy", p.Name, "limit", exceeded.Limit)
		return exceeded
	}
	return nil
}
