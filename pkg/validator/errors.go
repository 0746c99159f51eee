package validator

import "errors"

var (
	// ErrValidationFailed matches any ValidationErrors returned by Apply.
	ErrValidationFailed = errors.New("validation failed")

	// ErrFieldRequired is returned when a required field is empty.
	ErrFieldRequired = errors.New("field is required")
)
