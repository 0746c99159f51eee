package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBucket(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Bucket, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)}
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(c.Now), ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	return b, c
}

func TestNewBucket_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ratelimiter.Config
	}{
		{"zero capacity", ratelimiter.Config{Capacity: 0, RefillRate: 1, RefillInterval: time.Second}},
		{"zero refill rate", ratelimiter.Config{Capacity: 1, RefillRate: 0, RefillInterval: time.Second}},
		{"zero interval", ratelimiter.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0)), tt.cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	_, err := ratelimiter.NewBucket(nil, ratelimiter.PerInterval(1, time.Second))
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestBucket_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("burst then deny then refill", func(t *testing.T) {
		t.Parallel()
		b, c := newBucket(t, ratelimiter.PerInterval(3, time.Second))

		for i := 2; i >= 0; i-- {
			res, err := b.Allow(ctx, "sms")
			require.NoError(t, err)
			assert.True(t, res.Allowed())
			assert.Equal(t, i, res.Remaining)
			assert.Equal(t, 3, res.Limit)
		}

		res, err := b.Allow(ctx, "sms")
		require.NoError(t, err)
		assert.False(t, res.Allowed())
		assert.Equal(t, c.Now().Add(time.Second), res.ResetAt)

		c.Advance(time.Second)
		res, err = b.Allow(ctx, "sms")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 2, res.Remaining)
	})

	t.Run("denied requests are not charged", func(t *testing.T) {
		t.Parallel()
		b, c := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})

		_, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		for range 5 {
			res, err := b.Allow(ctx, "k")
			require.NoError(t, err)
			assert.False(t, res.Allowed())
		}

		c.Advance(time.Second)
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.PerInterval(1, time.Minute))

		res, err := b.Allow(ctx, "email")
		require.NoError(t, err)
		assert.True(t, res.Allowed())

		res, err = b.Allow(ctx, "sms")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		t.Parallel()
		b, c := newBucket(t, ratelimiter.Config{Capacity: 5, RefillRate: 1, RefillInterval: time.Second})

		_, err := b.AllowN(ctx, "k", 5)
		require.NoError(t, err)
		c.Advance(24 * time.Hour)

		res, err := b.Status(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 5, res.Remaining)
	})

	t.Run("invalid token count", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.PerInterval(1, time.Second))
		_, err := b.AllowN(ctx, "k", 0)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.PerInterval(1, time.Second))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := b.Allow(cctx, "k")
		assert.ErrorIs(t, err, ratelimiter.ErrContextCancelled)
	})

	t.Run("reset restores capacity", func(t *testing.T) {
		t.Parallel()
		b, _ := newBucket(t, ratelimiter.PerInterval(1, time.Hour))

		_, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		require.NoError(t, b.Reset(ctx, "k"))

		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})
}

func TestResult_RetryAfter(t *testing.T) {
	t.Parallel()

	allowed := &ratelimiter.Result{Remaining: 0, ResetAt: time.Now().Add(time.Minute)}
	assert.Zero(t, allowed.RetryAfter())

	denied := &ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(time.Minute)}
	assert.InDelta(t, time.Minute.Seconds(), denied.RetryAfter().Seconds(), 1)

	stale := &ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(-time.Minute)}
	assert.Zero(t, stale.RetryAfter())
}
