package commhub

import (
	"errors"

	"github.com/dmitrymomot/commhub/pkg/validator"
)

var (
	// ErrNotFound is returned by repositories for unknown ids.
	ErrNotFound = errors.New("commhub: not found")

	// ErrFeatureDisabled is returned by gated operations when their flag is off.
	ErrFeatureDisabled = errors.New("commhub: feature disabled")

	// ErrInvalidMessage is returned when a message fails validation.
	ErrInvalidMessage = errors.New("commhub: invalid message")

	// ErrNoRecipients is returned when nobody could be addressed.
	ErrNoRecipients = errors.New("commhub: no recipients")

	// ErrRecipientNotFound is returned when a user is not a recipient of the message.
	ErrRecipientNotFound = errors.New("commhub: recipient not found")

	// ErrConflict is returned when the message status does not allow the operation.
	ErrConflict = errors.New("commhub: conflicting message status")

	// ErrApprovalDenied is returned when the approver's role is below the message's approval level.
	ErrApprovalDenied = errors.New("commhub: approver may not approve this message")

	// ErrTemplateInactive is returned when a rule references a deactivated template.
	ErrTemplateInactive = errors.New("commhub: template is inactive")

	// ErrInvalidConfig is returned by New for unusable configuration.
	ErrInvalidConfig = errors.New("commhub: invalid config")
)

// validate applies rules and joins any failures with ErrInvalidMessage.
func validate(rules ...validator.Rule) error {
	if err := validator.Apply(rules...); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}
