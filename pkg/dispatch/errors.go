package dispatch

import (
	"errors"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrNoJobToClaim is returned when no job is ready for processing
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrJobNotFound is returned when a job id is unknown
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotProcessing is returned when completing or failing a job that was not claimed
	ErrJobNotProcessing = errors.New("job is not in processing state")

	// ErrJobExists is returned when pushing a job with a duplicate id
	ErrJobExists = errors.New("job already exists")

	// ErrNoSender is returned when no sender is registered for a job's channel
	ErrNoSender = errors.New("no sender registered for channel")

	// ErrNoSenders is returned when starting a worker without senders
	ErrNoSenders = errors.New("no channel senders registered")

	// ErrEmptyPlan is returned when enqueueing a plan without entries
	ErrEmptyPlan = errors.New("no plan entries to enqueue")
)

// PermanentError marks a delivery failure that retrying cannot fix,
// such as an invalid address or a recipient who blocked the sender.
type PermanentError struct {
	Status messaging.DeliveryStatus
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return string(e.Status)
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker stops retrying and reports status.
// Status defaults to failed.
func Permanent(status messaging.DeliveryStatus, err error) error {
	if status == "" || status == messaging.DeliveryPending {
		status = messaging.DeliveryFailed
	}
	return &PermanentError{Status: status, Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
