package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

func TestEnqueuer_EnqueuePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	at := time.Date(2024, time.June, 1, 6, 0, 0, 0, time.UTC)

	plan := []messaging.PlanEntry{
		{MessageID: "m1", RecipientID: "u1", Channel: messaging.ChannelEmail, Priority: 110, ScheduledFor: at, RetryAttempts: 9, Subject: "S", Content: "<html>"},
		{MessageID: "m1", RecipientID: "u1", Channel: messaging.ChannelSMS, Priority: 115, ScheduledFor: at, RetryAttempts: 6, Content: "S\n\nbody"},
	}

	t.Run("one job per entry", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		enq, err := dispatch.NewEnqueuer(q)
		require.NoError(t, err)

		jobs, err := enq.EnqueuePlan(ctx, plan)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, 2, q.Pending())

		assert.Equal(t, "m1", jobs[0].MessageID)
		assert.Equal(t, messaging.ChannelEmail, jobs[0].Channel)
		assert.Equal(t, 110, jobs[0].Priority)
		assert.Equal(t, 9, jobs[0].MaxRetries)
		assert.Equal(t, at, jobs[0].ScheduledAt)
		assert.Equal(t, "S", jobs[0].Subject)
		assert.Equal(t, dispatch.JobStatusPending, jobs[0].Status)
		assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
	})

	t.Run("retry cap", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		enq, err := dispatch.NewEnqueuer(q, dispatch.WithMaxRetriesCap(3))
		require.NoError(t, err)

		jobs, err := enq.EnqueuePlan(ctx, plan)
		require.NoError(t, err)
		assert.Equal(t, 3, jobs[0].MaxRetries)
		assert.Equal(t, 3, jobs[1].MaxRetries)
	})

	t.Run("empty plan", func(t *testing.T) {
		t.Parallel()
		q := dispatch.NewMemoryQueue()
		defer q.Close()

		enq, err := dispatch.NewEnqueuer(q)
		require.NoError(t, err)
		_, err = enq.EnqueuePlan(ctx, nil)
		assert.ErrorIs(t, err, dispatch.ErrEmptyPlan)
	})

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		_, err := dispatch.NewEnqueuer(nil)
		assert.ErrorIs(t, err, dispatch.ErrRepositoryNil)
	})
}
