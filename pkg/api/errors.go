package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/notifications"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// ErrInvalidBody is returned when a request body is not valid JSON for the endpoint.
var ErrInvalidBody = errors.New("api: invalid request body")

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error     string                     `json:"error"`
	Code      string                     `json:"code"`
	RequestID string                     `json:"request_id,omitempty"`
	Fields    validator.ValidationErrors `json:"fields,omitempty"`
}

// statusFor maps domain errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidBody):
		return http.StatusBadRequest, "invalid_body"
	case errors.Is(err, commhub.ErrInvalidMessage),
		errors.Is(err, messaging.ErrInvalidTemplate):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, commhub.ErrNoRecipients):
		return http.StatusBadRequest, "no_recipients"
	case errors.Is(err, commhub.ErrNotFound),
		errors.Is(err, notifications.ErrNotificationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, commhub.ErrRecipientNotFound):
		return http.StatusNotFound, "recipient_not_found"
	case errors.Is(err, commhub.ErrFeatureDisabled):
		return http.StatusForbidden, "feature_disabled"
	case errors.Is(err, commhub.ErrApprovalDenied):
		return http.StatusForbidden, "approval_denied"
	case errors.Is(err, commhub.ErrConflict),
		errors.Is(err, messaging.ErrNoTransition):
		return http.StatusConflict, "conflict"
	case errors.Is(err, commhub.ErrTemplateInactive):
		return http.StatusConflict, "template_inactive"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
