package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// PostgresQueue implements dispatch.Repository on the delivery_jobs table so
// several workers can share one queue. Claims use SKIP LOCKED; a job whose lock
// expired is claimable again.
type PostgresQueue struct {
	pool    *pgxpool.Pool
	backoff time.Duration
	now     func() time.Time
}

// PostgresQueueOption configures a PostgresQueue.
type PostgresQueueOption func(*PostgresQueue)

// WithQueueBackoff sets the linear retry backoff step.
func WithQueueBackoff(d time.Duration) PostgresQueueOption {
	return func(q *PostgresQueue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

// WithQueueClock overrides the time source.
func WithQueueClock(now func() time.Time) PostgresQueueOption {
	return func(q *PostgresQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewPostgresQueue creates a queue on an already migrated database.
func NewPostgresQueue(pool *pgxpool.Pool, opts ...PostgresQueueOption) *PostgresQueue {
	q := &PostgresQueue{
		pool:    pool,
		backoff: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ dispatch.Repository = (*PostgresQueue)(nil)

const jobColumns = `id, message_id, recipient_id, channel, priority, subject, content, status,
	retry_count, max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// Push inserts jobs with COPY.
func (q *PostgresQueue) Push(ctx context.Context, jobs ...dispatch.Job) error {
	_, err := q.pool.CopyFrom(ctx,
		pgx.Identifier{"delivery_jobs"},
		[]string{"id", "message_id", "recipient_id", "channel", "priority", "subject", "content",
			"status", "retry_count", "max_retries", "scheduled_at", "error", "created_at"},
		pgx.CopyFromSlice(len(jobs), func(i int) ([]any, error) {
			j := jobs[i]
			return []any{
				j.ID, j.MessageID, j.RecipientID, string(j.Channel), j.Priority, j.Subject, j.Content,
				string(dispatch.JobStatusPending), j.RetryCount, j.MaxRetries, j.ScheduledAt, j.Error, j.CreatedAt,
			}, nil
		}),
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %w", dispatch.ErrJobExists, err)
	}
	if err != nil {
		return fmt.Errorf("push jobs: %w", err)
	}
	return nil
}

// Claim locks the highest priority ready job, earliest schedule first on ties.
func (q *PostgresQueue) Claim(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*dispatch.Job, error) {
	now := q.now()
	row := q.pool.QueryRow(ctx, `
		UPDATE delivery_jobs SET status = 'processing', locked_by = $1, locked_until = $2
		WHERE id = (
			SELECT id FROM delivery_jobs
			WHERE (status = 'pending' AND scheduled_at <= $3)
			   OR (status = 'processing' AND locked_until < $3)
			ORDER BY priority DESC, scheduled_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, now.Add(lockDuration), now)

	job, err := scanJob(row)
	if isNotFound(err) {
		return nil, dispatch.ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a claimed job as delivered.
func (q *PostgresQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE delivery_jobs
		SET status = 'completed', processed_at = $2, locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND status = 'processing'`,
		jobID, q.now())
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return q.missing(ctx, jobID)
	}
	return nil
}

// Fail records a failed attempt, rescheduling with linear backoff while the
// budget lasts and retry is true, otherwise failing the job into the dead letters.
func (q *PostgresQueue) Fail(ctx context.Context, jobID uuid.UUID, reason string, retry bool) (*dispatch.Job, error) {
	var out *dispatch.Job
	err := pgx.BeginFunc(ctx, q.pool, func(tx pgx.Tx) error {
		job, err := scanJob(tx.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM delivery_jobs WHERE id = $1 FOR UPDATE`, jobID))
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", dispatch.ErrJobNotFound, jobID)
		}
		if err != nil {
			return err
		}
		if job.Status != dispatch.JobStatusProcessing {
			return fmt.Errorf("%w: %s", dispatch.ErrJobNotProcessing, jobID)
		}

		now := q.now()
		job.RetryCount++
		job.Error = reason
		job.LockedBy = nil
		job.LockedUntil = nil
		if retry && job.RetryCount <= job.MaxRetries {
			job.Status = dispatch.JobStatusPending
			job.ScheduledAt = now.Add(time.Duration(job.RetryCount) * q.backoff)
		} else {
			job.Status = dispatch.JobStatusFailed
			job.ProcessedAt = &now
		}

		if _, err := tx.Exec(ctx, `
			UPDATE delivery_jobs
			SET status = $2, retry_count = $3, error = $4, scheduled_at = $5, processed_at = $6,
			    locked_by = NULL, locked_until = NULL
			WHERE id = $1`,
			job.ID, string(job.Status), job.RetryCount, job.Error, job.ScheduledAt, job.ProcessedAt); err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		if job.Status == dispatch.JobStatusFailed {
			if _, err := tx.Exec(ctx, `
				INSERT INTO delivery_dead_letters (id, job_id, error, retry_count, failed_at)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), job.ID, reason, job.RetryCount, now); err != nil {
				return fmt.Errorf("dead-letter job %s: %w", jobID, err)
			}
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Defer returns a claimed job to pending until the given time without using a retry.
func (q *PostgresQueue) Defer(ctx context.Context, jobID uuid.UUID, until time.Time) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE delivery_jobs
		SET status = 'pending', scheduled_at = $2, locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND status = 'processing'`,
		jobID, until)
	if err != nil {
		return fmt.Errorf("defer job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return q.missing(ctx, jobID)
	}
	return nil
}

// CancelMessage cancels the pending jobs of a message. Claimed jobs are left alone.
func (q *PostgresQueue) CancelMessage(ctx context.Context, messageID string) (int, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE delivery_jobs SET status = 'cancelled' WHERE message_id = $1 AND status = 'pending'`,
		messageID)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs of %s: %w", messageID, err)
	}
	return int(tag.RowsAffected()), nil
}

// MessageJobs returns the jobs of a message in creation order.
func (q *PostgresQueue) MessageJobs(ctx context.Context, messageID string) ([]dispatch.Job, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM delivery_jobs WHERE message_id = $1 ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query jobs of %s: %w", messageID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (dispatch.Job, error) {
		job, err := scanJob(row)
		if err != nil {
			return dispatch.Job{}, err
		}
		return *job, nil
	})
}

// missing explains why a conditional update touched no rows.
func (q *PostgresQueue) missing(ctx context.Context, jobID uuid.UUID) error {
	var exists bool
	if err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM delivery_jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", dispatch.ErrJobNotFound, jobID)
	}
	return fmt.Errorf("%w: %s", dispatch.ErrJobNotProcessing, jobID)
}

func scanJob(row pgx.Row) (*dispatch.Job, error) {
	var (
		j       dispatch.Job
		channel string
		status  string
	)
	err := row.Scan(
		&j.ID, &j.MessageID, &j.RecipientID, &channel, &j.Priority, &j.Subject, &j.Content, &status,
		&j.RetryCount, &j.MaxRetries, &j.ScheduledAt, &j.LockedUntil, &j.LockedBy, &j.ProcessedAt,
		&j.Error, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Channel = messaging.Channel(channel)
	j.Status = dispatch.JobStatus(status)
	return &j, nil
}
