package messaging

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoTransition is returned when a lifecycle event is not allowed from the current status.
	ErrNoTransition = errors.New("messaging: status transition not allowed")

	// ErrInvalidTemplate is returned when a template cannot be used to build a message.
	ErrInvalidTemplate = errors.New("messaging: invalid template")

	// ErrUnknownContact is returned by contact lookups for users missing from the directory.
	ErrUnknownContact = errors.New("messaging: unknown contact")
)

// MissingVariablesError lists every required template variable absent from the supplied values.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return "missing required variables: " + strings.Join(e.Names, ", ")
}

// Unwrap lets callers match missing variables with errors.Is(err, ErrInvalidTemplate).
func (e *MissingVariablesError) Unwrap() error { return ErrInvalidTemplate }

// IsMissingVariablesError reports whether err carries a *MissingVariablesError.
func IsMissingVariablesError(err error) bool {
	var e *MissingVariablesError
	return errors.As(err, &e)
}

// TransitionError indicates a lifecycle event that is not valid for a status.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from status '%s' for event '%s'", e.From, e.Event)
}

// Unwrap lets callers match any transition failure with errors.Is(err, ErrNoTransition).
func (e *TransitionError) Unwrap() error { return ErrNoTransition }
