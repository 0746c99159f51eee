package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
)

// MockSender is a mock implementation of dispatch.Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, job dispatch.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// outcomes collects ResultHandler calls.
type outcomes struct {
	mu   sync.Mutex
	list []dispatch.Outcome
}

func (o *outcomes) handle(_ context.Context, out dispatch.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, out)
}

func (o *outcomes) all() []dispatch.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]dispatch.Outcome(nil), o.list...)
}

// fixedLimiter denies everything until a fixed time.
type fixedLimiter struct {
	resetAt time.Time
}

func (l fixedLimiter) Allow(ctx context.Context, key string) (*ratelimiter.Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l fixedLimiter) AllowN(_ context.Context, _ string, _ int) (*ratelimiter.Result, error) {
	return &ratelimiter.Result{Limit: 1, Remaining: -1, ResetAt: l.resetAt}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_ProcessNext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful delivery completes job", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(j dispatch.Job) bool {
			return j.RecipientID == "u1" && j.Content == "hello"
		})).Return(nil).Once()

		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, sender),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)

		job := newJob("m1", 60, time.Now().Add(-time.Second))
		job.Content = "hello"
		require.NoError(t, q.Push(ctx, job))

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)

		stored, err := q.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, dispatch.JobStatusCompleted, stored.Status)

		require.Len(t, got.all(), 1)
		out := got.all()[0]
		assert.Equal(t, messaging.DeliveryDelivered, out.Status)
		assert.True(t, out.Final)
		assert.Equal(t, 1, out.Job.Attempts())
		sender.AssertExpectations(t)

		processed, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue(dispatch.WithRetryBackoff(0))
		defer q.Close()

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("provider down")).Once()
		sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, sender),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, newJob("m1", 60, time.Now().Add(-time.Second))))

		for range 2 {
			processed, err := w.ProcessNext(ctx)
			require.NoError(t, err)
			require.True(t, processed)
		}

		all := got.all()
		require.Len(t, all, 2)
		assert.Equal(t, messaging.DeliveryPending, all[0].Status)
		assert.False(t, all[0].Final)
		assert.EqualError(t, all[0].Err, "provider down")
		assert.Equal(t, messaging.DeliveryDelivered, all[1].Status)
		assert.Equal(t, 2, all[1].Job.Attempts())
		sender.AssertExpectations(t)
	})

	t.Run("permanent failure stops retries", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).
			Return(dispatch.Permanent(messaging.DeliveryBounced, errors.New("mailbox does not exist"))).Once()

		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, sender),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, newJob("m1", 60, time.Now().Add(-time.Second))))

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		require.Len(t, got.all(), 1)
		assert.Equal(t, messaging.DeliveryBounced, got.all()[0].Status)
		assert.True(t, got.all()[0].Final)

		dlq, err := q.DeadLetters(ctx)
		require.NoError(t, err)
		assert.Len(t, dlq, 1)
	})

	t.Run("missing sender fails without retry", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelSMS, &MockSender{}),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, newJob("m1", 60, time.Now().Add(-time.Second))))

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		require.Len(t, got.all(), 1)
		assert.Equal(t, messaging.DeliveryFailed, got.all()[0].Status)
		assert.ErrorIs(t, got.all()[0].Err, dispatch.ErrNoSender)
	})

	t.Run("throttled channel defers job", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		resetAt := time.Now().Add(time.Hour)
		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, &MockSender{}),
			dispatch.WithRateLimit(messaging.ChannelEmail, fixedLimiter{resetAt: resetAt}),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)

		job := newJob("m1", 60, time.Now().Add(-time.Second))
		require.NoError(t, q.Push(ctx, job))

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Empty(t, got.all())

		stored, err := q.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, dispatch.JobStatusPending, stored.Status)
		assert.Equal(t, 0, stored.RetryCount)
		assert.True(t, resetAt.Equal(stored.ScheduledAt))
	})

	t.Run("sender panic is recovered as failure", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		got := &outcomes{}
		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, dispatch.SenderFunc(func(context.Context, dispatch.Job) error {
				panic("boom")
			})),
			dispatch.WithResultHandler(got.handle),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, newJob("m1", 60, time.Now().Add(-time.Second))))

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		require.Len(t, got.all(), 1)
		assert.Contains(t, got.all()[0].Err.Error(), "panic in sender: boom")
	})
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("requires senders", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		w, err := dispatch.NewWorker(q, dispatch.WithWorkerLogger(quietLogger()))
		require.NoError(t, err)
		assert.ErrorIs(t, w.Start(context.Background()), dispatch.ErrNoSenders)
	})

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		_, err := dispatch.NewWorker(nil)
		assert.ErrorIs(t, err, dispatch.ErrRepositoryNil)
	})

	t.Run("delivers in background until stopped", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		var mu sync.Mutex
		var delivered []int
		sender := dispatch.SenderFunc(func(_ context.Context, j dispatch.Job) error {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, j.Priority)
			return nil
		})

		past := time.Now().Add(-time.Second)
		require.NoError(t, q.Push(context.Background(),
			newJob("m1", 60, past),
			newJob("m1", 115, past),
			newJob("m1", 75, past),
		))

		w, err := dispatch.NewWorker(q,
			dispatch.WithSender(messaging.ChannelEmail, sender),
			dispatch.WithPullInterval(10*time.Millisecond),
			dispatch.WithWorkerLogger(quietLogger()),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx)() }()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(delivered) == 3
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int{115, 75, 60}, delivered, "single slot serves highest priority first")
	})
}
