package validator_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/validator"
)

var errInvalidMessage = errors.New("invalid message")

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("nil when every rule passes", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("subject", "Roof repair"),
			validator.MaxLen("content", "Crew meets at 8am", 20),
		)
		assert.NoError(t, err)
	})

	t.Run("reports every failing rule in order", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("subject", "  "),
			validator.MaxLen("content", "too long", 3),
			validator.Required("subject", ""),
		)
		require.Error(t, err)

		verrs := validator.ExtractValidationErrors(err)
		require.Len(t, verrs, 3)
		assert.Equal(t, []string{"subject", "content"}, verrs.Fields())
		assert.Equal(t, []string{"field is required", "field is required"}, verrs.Get("subject"))
		assert.True(t, verrs.Has("content"))
		assert.False(t, verrs.Has("recipients"))
		assert.Equal(t, "validation failed: subject: field is required; content: must be at most 3 characters long; subject: field is required", err.Error())
	})
}

func TestValidationErrors_Joined(t *testing.T) {
	t.Parallel()

	err := errors.Join(errInvalidMessage, validator.Apply(validator.Required("subject", "")))
	wrapped := fmt.Errorf("send: %w", err)

	assert.ErrorIs(t, wrapped, errInvalidMessage)
	assert.ErrorIs(t, wrapped, validator.ErrValidationFailed)
	assert.True(t, validator.IsValidationError(wrapped))
	assert.Equal(t, []string{"subject"}, validator.ExtractValidationErrors(wrapped).Fields())

	assert.False(t, validator.IsValidationError(errInvalidMessage))
	assert.Nil(t, validator.ExtractValidationErrors(nil))
}

func TestValidationErrors_Empty(t *testing.T) {
	t.Parallel()

	var errs validator.ValidationErrors
	assert.True(t, errs.IsEmpty())
	assert.Equal(t, "validation failed", errs.Error())

	errs.Add(validator.ValidationError{Field: "user_id", Message: "field is required"})
	assert.False(t, errs.IsEmpty())
}
