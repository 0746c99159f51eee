// Package validator builds declarative validation out of small Rule values.
//
// A Rule pairs a Check func with a translation-friendly ValidationError.
// Apply evaluates every rule and aggregates the failures into
// ValidationErrors, which implements error and matches ErrValidationFailed
// with errors.Is, so callers can join it with their own sentinel:
//
//	if err := validator.Apply(
//	    validator.Required("subject", msg.Subject),
//	    validator.MaxLen("content", msg.Content, 2000),
//	    validator.Known("priority", msg.Priority),
//	); err != nil {
//	    return errors.Join(ErrInvalidMessage, err)
//	}
//
// Rules are evaluated eagerly and in order; every failing rule is reported.
// The package holds no state and is safe for concurrent use.
package validator
