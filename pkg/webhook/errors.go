package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrCircuitOpen          = errors.New("webhook circuit breaker is open")
	ErrNoPhone              = errors.New("recipient has no phone number")
	ErrRejected             = errors.New("relay rejected the delivery")
	ErrUnavailable          = errors.New("relay unavailable")
)
