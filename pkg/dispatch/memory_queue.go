package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Repository in memory for tests and single-process deployments.
type MemoryQueue struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*Job
	dlq     []DeadLetter
	pending []uuid.UUID
	byMsg   map[string][]uuid.UUID

	now     func() time.Time
	backoff time.Duration

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryQueueOption configures a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithQueueClock overrides the time source.
func WithQueueClock(now func() time.Time) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithRetryBackoff sets the linear backoff step: retry n waits n*d.
func WithRetryBackoff(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

// NewMemoryQueue creates a queue and starts the lock expiration loop.
func NewMemoryQueue(opts ...MemoryQueueOption) *MemoryQueue {
	q := &MemoryQueue{
		jobs:    make(map[uuid.UUID]*Job),
		byMsg:   make(map[string][]uuid.UUID),
		now:     time.Now,
		backoff: 30 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.lockTicker = time.NewTicker(time.Second)
	go q.lockExpirationManager()

	return q
}

// Close stops the background goroutine. Safe to call more than once.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
		q.lockTicker.Stop()
	})
	return nil
}

// Push stores new pending jobs.
func (q *MemoryQueue) Push(ctx context.Context, jobs ...Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range jobs {
		if _, exists := q.jobs[j.ID]; exists {
			return fmt.Errorf("%w: %s", ErrJobExists, j.ID)
		}
	}
	for _, j := range jobs {
		job := j
		job.Status = JobStatusPending
		q.jobs[job.ID] = &job
		q.pending = append(q.pending, job.ID)
		q.byMsg[job.MessageID] = append(q.byMsg[job.MessageID], job.ID)
	}
	return nil
}

// Claim locks the most important ready job: highest priority first, earliest schedule on ties.
func (q *MemoryQueue) Claim(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var best *Job
	for _, id := range q.pending {
		job := q.jobs[id]
		if job.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.ScheduledAt.Before(best.ScheduledAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = JobStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	q.removePending(best.ID)

	out := *best
	return &out, nil
}

// Complete marks a claimed job as delivered.
func (q *MemoryQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.processing(jobID)
	if err != nil {
		return err
	}

	now := q.now()
	job.Status = JobStatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

// Fail records a failed attempt. While the retry budget lasts and retry is true,
// the job goes back to pending with linear backoff; otherwise it becomes failed
// and is copied to the dead letter list. The updated job is returned.
func (q *MemoryQueue) Fail(ctx context.Context, jobID uuid.UUID, reason string, retry bool) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.processing(jobID)
	if err != nil {
		return nil, err
	}

	now := q.now()
	job.RetryCount++
	job.Error = reason
	job.LockedUntil = nil
	job.LockedBy = nil

	if retry && job.RetryCount <= job.MaxRetries {
		job.Status = JobStatusPending
		job.ScheduledAt = now.Add(time.Duration(job.RetryCount) * q.backoff)
		q.pending = append(q.pending, job.ID)
	} else {
		job.Status = JobStatusFailed
		job.ProcessedAt = &now
		q.dlq = append(q.dlq, DeadLetter{
			ID:         uuid.New(),
			Job:        *job,
			Error:      reason,
			RetryCount: job.RetryCount,
			FailedAt:   now,
		})
	}

	out := *job
	return &out, nil
}

// Defer returns a claimed job to pending until the given time without using a retry.
func (q *MemoryQueue) Defer(ctx context.Context, jobID uuid.UUID, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.processing(jobID)
	if err != nil {
		return err
	}

	job.Status = JobStatusPending
	job.ScheduledAt = until
	job.LockedUntil = nil
	job.LockedBy = nil
	q.pending = append(q.pending, job.ID)
	return nil
}

// CancelMessage cancels every pending job of a message and returns how many were cancelled.
// Jobs already claimed by a worker are left alone.
func (q *MemoryQueue) CancelMessage(ctx context.Context, messageID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancelled := 0
	for _, id := range q.byMsg[messageID] {
		job := q.jobs[id]
		if job.Status != JobStatusPending {
			continue
		}
		job.Status = JobStatusCancelled
		q.removePending(id)
		cancelled++
	}
	return cancelled, nil
}

// Get returns a copy of a job.
func (q *MemoryQueue) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	out := *job
	return &out, nil
}

// MessageJobs returns copies of all jobs of a message in push order.
func (q *MemoryQueue) MessageJobs(ctx context.Context, messageID string) ([]Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ids := q.byMsg[messageID]
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, *q.jobs[id])
	}
	return out, nil
}

// DeadLetters returns the jobs that will not be retried.
func (q *MemoryQueue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.dlq), nil
}

// Pending returns the number of jobs waiting to be claimed.
func (q *MemoryQueue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

func (q *MemoryQueue) processing(jobID uuid.UUID) (*Job, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != JobStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrJobNotProcessing, jobID)
	}
	return job, nil
}

func (q *MemoryQueue) removePending(jobID uuid.UUID) {
	q.pending = slices.DeleteFunc(q.pending, func(id uuid.UUID) bool {
		return id == jobID
	})
}

// lockExpirationManager returns jobs held by crashed or stuck workers to pending.
func (q *MemoryQueue) lockExpirationManager() {
	for {
		select {
		case <-q.lockTicker.C:
			q.expireLocks()
		case <-q.done:
			return
		}
	}
}

func (q *MemoryQueue) expireLocks() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, job := range q.jobs {
		if job.Status == JobStatusProcessing && job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.Status = JobStatusPending
			job.LockedUntil = nil
			job.LockedBy = nil
			q.pending = append(q.pending, id)
		}
	}
}
