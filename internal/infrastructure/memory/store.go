// Package memory provides an in-process ephemeral store for development and tests.
// It keeps the same per-key TTL and atomic compare-and-delete semantics as the
// Redis store but does not share state between processes.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is a mutex-guarded map of keys with per-key expiry.
type Store struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, letting tests advance time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowF = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{m: make(map[string]entry), nowF: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// live returns the entry for key, evicting it when expired. Caller holds mu.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.m[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return true, nil
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return "", fmt.Errorf("key not found: %w", domain.ErrNotFound)
	}
	return e.value, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *Store) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(s.m, key)
	return true, nil
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if e, ok := s.live(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value is not an integer: %w", err)
		}
		n = parsed
	}
	n++
	s.m[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: s.nowF().Add(ttl)}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Sweep drops every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	removed := 0
	for k, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
