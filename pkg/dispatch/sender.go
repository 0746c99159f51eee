package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sender delivers jobs of one channel to a provider.
// Return an error wrapped with Permanent to stop retries.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, job Job) error

func (f SenderFunc) Send(ctx context.Context, job Job) error { return f(ctx, job) }

// ResultHandler is notified after every delivery attempt.
type ResultHandler func(ctx context.Context, outcome Outcome)

// Repository is the storage the worker and enqueuer need.
type Repository interface {
	Push(ctx context.Context, jobs ...Job) error
	Claim(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, reason string, retry bool) (*Job, error)
	Defer(ctx context.Context, jobID uuid.UUID, until time.Time) error
	CancelMessage(ctx context.Context, messageID string) (int, error)
}

var _ Repository = (*MemoryQueue)(nil)
