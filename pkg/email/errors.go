package email

import (
	"errors"
	"fmt"
)

var (
	ErrFailedToSendEmail = errors.New("email: failed to send email")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidParams     = errors.New("email: invalid params")
	ErrNoAddress         = errors.New("email: recipient has no email address")
)

// ProviderError is an error code returned by the email provider API.
type ProviderError struct {
	Code    int64
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("postmark error: %d - %s", e.Code, e.Message)
}

// Postmark API error codes that mean the address itself is unusable.
const (
	codeInvalidEmail      = 300
	codeInactiveRecipient = 406
)

// Undeliverable reports whether retrying the same address cannot succeed.
func (e *ProviderError) Undeliverable() bool {
	return e.Code == codeInvalidEmail || e.Code == codeInactiveRecipient
}
