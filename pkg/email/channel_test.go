package email_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/email"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

type MockContacts struct {
	mock.Mock
}

func (m *MockContacts) Contact(ctx context.Context, userID string) (messaging.Contact, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(messaging.Contact), args.Error(1)
}

func emailJob() dispatch.Job {
	return dispatch.Job{
		MessageID:   "msg-1",
		RecipientID: "u1",
		Channel:     messaging.ChannelEmail,
		Subject:     "Assignment update",
		Content:     "<html><body>hi</body></html>",
	}
}

func permanentStatus(t *testing.T, err error) messaging.DeliveryStatus {
	t.Helper()
	var pe *dispatch.PermanentError
	require.ErrorAs(t, err, &pe)
	return pe.Status
}

func TestChannelSender_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sends envelope to contact address", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1", Email: "u1@example.com"}, nil)
		mailer := &MockEmailSender{}
		mailer.On("SendEmail", mock.Anything, email.SendEmailParams{
			SendTo:   "u1@example.com",
			Subject:  "Assignment update",
			BodyHTML: "<html><body>hi</body></html>",
			Tag:      "msg-1",
		}).Return(nil)

		err := email.NewChannelSender(mailer, contacts).Send(ctx, emailJob())
		require.NoError(t, err)
		mailer.AssertExpectations(t)
	})

	t.Run("no address blocks", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1"}, nil)
		mailer := &MockEmailSender{}

		err := email.NewChannelSender(mailer, contacts).Send(ctx, emailJob())
		assert.ErrorIs(t, err, email.ErrNoAddress)
		assert.Equal(t, messaging.DeliveryBlocked, permanentStatus(t, err))
		mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})

	t.Run("malformed address bounces", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1", Email: "nope"}, nil)

		err := email.NewChannelSender(&MockEmailSender{}, contacts).Send(ctx, emailJob())
		assert.Equal(t, messaging.DeliveryBounced, permanentStatus(t, err))
	})

	t.Run("provider rejection bounces", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1", Email: "u1@example.com"}, nil)
		mailer := &MockEmailSender{}
		mailer.On("SendEmail", mock.Anything, mock.Anything).
			Return(errors.Join(email.ErrFailedToSendEmail, &email.ProviderError{Code: 406, Message: "inactive recipient"}))

		err := email.NewChannelSender(mailer, contacts).Send(ctx, emailJob())
		assert.Equal(t, messaging.DeliveryBounced, permanentStatus(t, err))
	})

	t.Run("transient provider failure is retryable", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1", Email: "u1@example.com"}, nil)
		mailer := &MockEmailSender{}
		mailer.On("SendEmail", mock.Anything, mock.Anything).Return(errors.Join(email.ErrFailedToSendEmail, errors.New("timeout")))

		err := email.NewChannelSender(mailer, contacts).Send(ctx, emailJob())
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
		assert.False(t, dispatch.IsPermanent(err))
	})

	t.Run("empty subject fails permanently", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{UserID: "u1", Email: "u1@example.com"}, nil)

		job := emailJob()
		job.Subject = ""
		err := email.NewChannelSender(email.NewDevSender(t.TempDir()), contacts).Send(ctx, job)
		assert.Equal(t, messaging.DeliveryFailed, permanentStatus(t, err))
	})

	t.Run("unknown contact blocks", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").
			Return(messaging.Contact{}, fmt.Errorf("%w: u1", messaging.ErrUnknownContact))
		mailer := &MockEmailSender{}

		err := email.NewChannelSender(mailer, contacts).Send(ctx, emailJob())
		assert.ErrorIs(t, err, messaging.ErrUnknownContact)
		assert.Equal(t, messaging.DeliveryBlocked, permanentStatus(t, err))
		mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})

	t.Run("lookup error is retryable", func(t *testing.T) {
		t.Parallel()

		contacts := &MockContacts{}
		contacts.On("Contact", mock.Anything, "u1").Return(messaging.Contact{}, errors.New("db down"))

		err := email.NewChannelSender(&MockEmailSender{}, contacts).Send(ctx, emailJob())
		require.Error(t, err)
		assert.False(t, dispatch.IsPermanent(err))
	})
}
