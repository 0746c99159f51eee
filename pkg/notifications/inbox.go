package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// ReadHandler is told when a user opens an inbox item.
type ReadHandler func(ctx context.Context, messageID, userID string, at time.Time) error

// Inbox is the in-app channel: it stores delivered notifications and
// reports reads back to the owner of the originating message.
type Inbox struct {
	storage Storage
	onRead  ReadHandler
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger for the Inbox.
func WithInboxLogger(l *slog.Logger) InboxOption {
	return func(i *Inbox) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithReadHandler sets the callback invoked for every newly read notification.
func WithReadHandler(h ReadHandler) InboxOption {
	return func(i *Inbox) {
		i.onRead = h
	}
}

// WithTTL expires notifications after d. Zero keeps them forever.
func WithTTL(d time.Duration) InboxOption {
	return func(i *Inbox) {
		if d >= 0 {
			i.ttl = d
		}
	}
}

// WithInboxClock overrides the time source.
func WithInboxClock(now func() time.Time) InboxOption {
	return func(i *Inbox) {
		if now != nil {
			i.now = now
		}
	}
}

// NewInbox creates a new in-app inbox.
func NewInbox(storage Storage, opts ...InboxOption) *Inbox {
	i := &Inbox{
		storage: storage,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ dispatch.Sender = (*Inbox)(nil)

// Send implements dispatch.Sender for in-app jobs. The job content must be
// the JSON payload produced by messaging.FormatInApp; anything else fails permanently.
func (i *Inbox) Send(ctx context.Context, job dispatch.Job) error {
	var payload messaging.InAppPayload
	if err := json.Unmarshal([]byte(job.Content), &payload); err != nil {
		return dispatch.Permanent(messaging.DeliveryFailed, fmt.Errorf("decode in-app payload: %w", err))
	}

	now := i.now()
	notif := Notification{
		ID:        uuid.NewString(),
		UserID:    job.RecipientID,
		MessageID: job.MessageID,
		Title:     payload.Title,
		Body:      payload.Body,
		Priority:  payload.Priority,
		Category:  payload.Category,
		Sender:    payload.Sender,
		Actions:   payload.Actions,
		CreatedAt: now,
	}
	if i.ttl > 0 {
		exp := now.Add(i.ttl)
		notif.ExpiresAt = &exp
	}

	if err := i.storage.Create(ctx, notif); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (i *Inbox) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	return i.storage.Get(ctx, userID, notifID)
}

func (i *Inbox) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return i.storage.List(ctx, userID, opts)
}

// MarkRead marks notifications as read and reports each newly read one.
// Handler failures are logged; the items stay read.
func (i *Inbox) MarkRead(ctx context.Context, userID string, notifIDs ...string) error {
	marked, err := i.storage.MarkRead(ctx, userID, i.now(), notifIDs...)
	if err != nil {
		return err
	}
	if i.onRead == nil {
		return nil
	}

	for _, n := range marked {
		if err := i.onRead(ctx, n.MessageID, n.UserID, *n.ReadAt); err != nil {
			i.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record read receipt",
				logger.MessageID(n.MessageID),
				logger.UserID(n.UserID),
				logger.Error(err),
			)
		}
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (i *Inbox) MarkAllRead(ctx context.Context, userID string) error {
	unread, err := i.storage.List(ctx, userID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	ids := make([]string, len(unread))
	for k, n := range unread {
		ids[k] = n.ID
	}
	return i.MarkRead(ctx, userID, ids...)
}

func (i *Inbox) Delete(ctx context.Context, userID string, notifIDs ...string) error {
	return i.storage.Delete(ctx, userID, notifIDs...)
}

func (i *Inbox) CountUnread(ctx context.Context, userID string) (int, error) {
	return i.storage.CountUnread(ctx, userID)
}
