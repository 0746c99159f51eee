package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Enqueuer turns delivery plans into queued jobs.
type Enqueuer struct {
	repo       Repository
	maxRetries int
	now        func() time.Time
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithMaxRetriesCap caps the retry budget of every job. Plans can ask for
// up to nine retries for emergency email; providers may want fewer.
func WithMaxRetriesCap(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithEnqueuerClock overrides the time source used for CreatedAt.
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo Repository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	e := &Enqueuer{
		repo:       repo,
		maxRetries: -1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueuePlan stores one job per plan entry and returns them.
func (e *Enqueuer) EnqueuePlan(ctx context.Context, plan []messaging.PlanEntry) ([]Job, error) {
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}

	now := e.now()
	jobs := make([]Job, 0, len(plan))
	for _, entry := range plan {
		retries := entry.RetryAttempts
		if e.maxRetries >= 0 && retries > e.maxRetries {
			retries = e.maxRetries
		}
		jobs = append(jobs, Job{
			ID:          uuid.New(),
			MessageID:   entry.MessageID,
			RecipientID: entry.RecipientID,
			Channel:     entry.Channel,
			Priority:    entry.Priority,
			Subject:     entry.Subject,
			Content:     entry.Content,
			Status:      JobStatusPending,
			MaxRetries:  retries,
			ScheduledAt: entry.ScheduledFor,
			CreatedAt:   now,
		})
	}

	if err := e.repo.Push(ctx, jobs...); err != nil {
		return nil, fmt.Errorf("failed to enqueue %d jobs for message %q: %w", len(jobs), plan[0].MessageID, err)
	}
	return jobs, nil
}

// CancelMessage drops the pending jobs of a message.
func (e *Enqueuer) CancelMessage(ctx context.Context, messageID string) (int, error) {
	return e.repo.CancelMessage(ctx, messageID)
}
