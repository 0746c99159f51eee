package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// JobStatus represents the status of a delivery job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is one delivery plan entry waiting for, or going through, a channel sender.
// MaxRetries is the retry budget: a job is attempted at most MaxRetries+1 times.
type Job struct {
	ID          uuid.UUID         `json:"id"`
	MessageID   string            `json:"message_id"`
	RecipientID string            `json:"recipient_id"`
	Channel     messaging.Channel `json:"channel"`
	Priority    int               `json:"priority"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	Status      JobStatus         `json:"status"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	LockedUntil *time.Time        `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID        `json:"locked_by,omitempty"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Attempts is how many times the job has been handed to a sender.
func (j Job) Attempts() int {
	if j.Status == JobStatusCompleted {
		return j.RetryCount + 1
	}
	return j.RetryCount
}

// DeadLetter keeps a job that exhausted its retries, or failed permanently, for inspection.
type DeadLetter struct {
	ID         uuid.UUID `json:"id"`
	Job        Job       `json:"job"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
}

// Outcome reports the result of a delivery attempt.
// Final is false while the job still has retries left.
type Outcome struct {
	Job    Job
	Status messaging.DeliveryStatus
	Err    error
	Final  bool
}
