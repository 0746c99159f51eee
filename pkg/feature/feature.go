package feature

import (
	"context"
	"errors"
	"time"
)

// Flag represents a feature flag with its configuration.
type Flag struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Strategy    Strategy  `json:"-"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Strategy narrows an enabled flag to part of the audience.
type Strategy interface {
	// Evaluate determines if the feature should be enabled for a specific context.
	// Context should contain data required by the strategy (user ID, region, etc.).
	Evaluate(ctx context.Context) (bool, error)
}

// Extractor function types for retrieving evaluation data from context.
type (
	UserIDExtractor func(ctx context.Context) string
	RegionExtractor func(ctx context.Context) string
)

// Provider is the interface that all feature flag providers must implement.
type Provider interface {
	// IsEnabled checks if a feature flag is enabled for the given context.
	// If the flag doesn't exist, it returns false and ErrFlagNotFound.
	IsEnabled(ctx context.Context, flagName string) (bool, error)

	// GetFlag returns the full flag configuration.
	// If the flag doesn't exist, it returns nil and ErrFlagNotFound.
	GetFlag(ctx context.Context, flagName string) (*Flag, error)

	// ListFlags returns all available flags, optionally filtered by tags.
	ListFlags(ctx context.Context, tags ...string) ([]*Flag, error)

	// SetFlag creates the flag or replaces an existing one.
	SetFlag(ctx context.Context, flag *Flag) error
}

// Enabled evaluates flagName and returns fallback when the provider does not know the flag.
func Enabled(ctx context.Context, p Provider, flagName string, fallback bool) (bool, error) {
	if p == nil {
		return fallback, nil
	}
	enabled, err := p.IsEnabled(ctx, flagName)
	if errors.Is(err, ErrFlagNotFound) {
		return fallback, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// Require returns an error wrapping ErrDisabled unless flagName is enabled.
// Unknown flags count as disabled.
func Require(ctx context.Context, p Provider, flagName string) error {
	enabled, err := Enabled(ctx, p, flagName, false)
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	if !enabled {
		return &DisabledError{Flag: flagName}
	}
	return nil
}

// DisabledError names the flag that blocked an operation.
type DisabledError struct {
	Flag string
}

func (e *DisabledError) Error() string {
	return "feature " + e.Flag + " is disabled"
}

func (e *DisabledError) Unwrap() error { return ErrDisabled }
