package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *Clock) {
	clock := NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(WithClock(clock.Now)), clock
}

func TestStore_GetAfterTTL(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "OTP:a@b.com", "123456", time.Minute))
	v, err := s.Get(ctx, "OTP:a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", v)

	clock.Advance(time.Minute)

	_, err = s.Get(ctx, "OTP:a@b.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_SetNXRespectsExpiry(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	ok, _ := s.SetNX(ctx, "k", "1", time.Minute)
	assert.True(t, ok)
	ok, _ = s.SetNX(ctx, "k", "1", time.Minute)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, _ = s.SetNX(ctx, "k", "1", time.Minute)
	assert.True(t, ok)
}

func TestStore_CompareAndDelete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "v", time.Minute))

	ok, _ := s.CompareAndDelete(ctx, "c", "other")
	assert.False(t, ok)
	ok, _ = s.CompareAndDelete(ctx, "c", "v")
	assert.True(t, ok)
	exists, _ := s.Exists(ctx, "c")
	assert.False(t, exists)
}

func TestStore_CompareAndDelete_SingleWinner(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "c", "v", time.Minute))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.CompareAndDelete(ctx, "c", "v"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestStore_IncrResetsAfterExpiry(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "ctr", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	clock.Advance(time.Hour)
	n, err := s.Incr(ctx, "ctr", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_IncrOnNonInteger(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "abc", time.Minute))

	_, err := s.Incr(ctx, "k", time.Minute)
	assert.Error(t, err)
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "short", "1", time.Second))
	require.NoError(t, s.Set(ctx, "long", "1", time.Hour))

	clock.Advance(time.Minute)

	assert.Equal(t, 1, s.Sweep())
	ok, _ := s.Exists(ctx, "long")
	assert.True(t, ok)
}

func TestStore_RunJanitorStopsOnCancel(t *testing.T) {
	s, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
