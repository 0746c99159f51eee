package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// ContactLookup resolves a user id to directory contact details.
type ContactLookup interface {
	Contact(ctx context.Context, userID string) (messaging.Contact, error)
}

// ChannelSender delivers email-channel jobs through an EmailSender.
// Job content is the HTML envelope produced by the planner.
type ChannelSender struct {
	mailer   EmailSender
	contacts ContactLookup
	logger   *slog.Logger
}

// ChannelSenderOption configures a ChannelSender.
type ChannelSenderOption func(*ChannelSender)

// WithChannelLogger sets the logger.
func WithChannelLogger(l *slog.Logger) ChannelSenderOption {
	return func(c *ChannelSender) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChannelSender creates the email channel sender.
func NewChannelSender(mailer EmailSender, contacts ContactLookup, opts ...ChannelSenderOption) *ChannelSender {
	c := &ChannelSender{
		mailer:   mailer,
		contacts: contacts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ dispatch.Sender = (*ChannelSender)(nil)

// Send implements dispatch.Sender.
// An unknown recipient or a missing address blocks delivery and an address the provider rejects bounces;
// neither is retried. Every other failure is left to the worker's retry policy.
func (c *ChannelSender) Send(ctx context.Context, job dispatch.Job) error {
	contact, err := c.contacts.Contact(ctx, job.RecipientID)
	if errors.Is(err, messaging.ErrUnknownContact) {
		return dispatch.Permanent(messaging.DeliveryBlocked, fmt.Errorf("lookup contact %s: %w", job.RecipientID, err))
	}
	if err != nil {
		return fmt.Errorf("lookup contact %s: %w", job.RecipientID, err)
	}
	if contact.Email == "" {
		return dispatch.Permanent(messaging.DeliveryBlocked, fmt.Errorf("%w: %s", ErrNoAddress, job.RecipientID))
	}
	if !ValidAddress(contact.Email) {
		return dispatch.Permanent(messaging.DeliveryBounced, fmt.Errorf("%w: invalid address for %s", ErrInvalidParams, job.RecipientID))
	}

	err = c.mailer.SendEmail(ctx, SendEmailParams{
		SendTo:   contact.Email,
		Subject:  job.Subject,
		BodyHTML: job.Content,
		Tag:      job.MessageID,
	})
	if err == nil {
		return nil
	}

	var pe *ProviderError
	switch {
	case errors.As(err, &pe) && pe.Undeliverable():
		c.logger.LogAttrs(ctx, slog.LevelWarn, "email address rejected by provider",
			logger.MessageID(job.MessageID),
			logger.RecipientID(job.RecipientID),
			slog.Int64("code", pe.Code),
		)
		return dispatch.Permanent(messaging.DeliveryBounced, err)
	case errors.Is(err, ErrInvalidParams):
		return dispatch.Permanent(messaging.DeliveryFailed, err)
	default:
		return err
	}
}
