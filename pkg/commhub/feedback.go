package commhub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// DeliveryUpdate is a channel sender's report about one recipient.
type DeliveryUpdate struct {
	MessageID   string                   `json:"message_id"`
	RecipientID string                   `json:"recipient_id"`
	Channel     messaging.Channel        `json:"channel"`
	Status      messaging.DeliveryStatus `json:"status"`
	Reason      string                   `json:"reason,omitempty"`
	Attempts    int                      `json:"attempts"`
}

// RecordDelivery stores a delivery outcome and recomputes the recipient and
// message status. A message becomes sent once every recipient who must respond
// is delivered (any delivered recipient when nobody must, or once nothing is
// pending and something was delivered), and failed once nothing was delivered and
// nothing is pending. Finished messages only keep the record.
func (h *Hub) RecordDelivery(ctx context.Context, u DeliveryUpdate) (messaging.Message, error) {
	if u.Status == "" {
		u.Status = messaging.DeliveryPending
	}

	msg, err := h.store.UpdateMessage(ctx, u.MessageID, func(m *messaging.Message) error {
		rcpt, ok := m.Recipient(u.RecipientID)
		if !ok {
			return fmt.Errorf("%w: %s on message %s", ErrRecipientNotFound, u.RecipientID, m.ID)
		}

		now := h.now()
		upsertDelivery(m, messaging.DeliveryRecord{
			RecipientID: u.RecipientID,
			Channel:     u.Channel,
			Status:      u.Status,
			Reason:      u.Reason,
			Attempts:    u.Attempts,
			UpdatedAt:   now,
		})
		rcpt.DeliveryStatus = recipientStatus(m.Deliveries, u.RecipientID)

		if m.Status == messaging.StatusScheduled {
			if err := m.Fire(messaging.EventSend, now); err != nil {
				return err
			}
		}
		if m.Status != messaging.StatusSending {
			m.UpdatedAt = now
			return nil
		}
		if ev, ok := aggregate(m.Recipients); ok {
			return m.Fire(ev, now)
		}
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return messaging.Message{}, err
	}

	h.logger.LogAttrs(ctx, slog.LevelDebug, "delivery recorded",
		logger.MessageID(msg.ID),
		logger.RecipientID(u.RecipientID),
		logger.Channel(u.Channel),
		slog.String("delivery_status", string(u.Status)),
		slog.String("message_status", string(msg.Status)),
	)
	return msg, nil
}

// HandleOutcome is a dispatch.ResultHandler that records worker outcomes.
func (h *Hub) HandleOutcome(ctx context.Context, o dispatch.Outcome) {
	u := DeliveryUpdate{
		MessageID:   o.Job.MessageID,
		RecipientID: o.Job.RecipientID,
		Channel:     o.Job.Channel,
		Status:      o.Status,
		Attempts:    o.Job.Attempts(),
	}
	if o.Err != nil {
		u.Reason = o.Err.Error()
	}
	if _, err := h.RecordDelivery(ctx, u); err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record delivery outcome",
			logger.JobID(o.Job.ID),
			logger.MessageID(o.Job.MessageID),
			logger.RecipientID(o.Job.RecipientID),
			logger.Error(err),
		)
	}
}

// MarkRead records that userID opened the message on ch. Repeated reads keep
// the first read time and a single receipt per channel.
func (h *Hub) MarkRead(ctx context.Context, messageID, userID string, ch messaging.Channel) error {
	if ch == "" {
		ch = messaging.ChannelInApp
	}
	if err := validate(validator.Known("channel", ch)); err != nil {
		return err
	}

	_, err := h.store.UpdateMessage(ctx, messageID, func(m *messaging.Message) error {
		rcpt, ok := m.Recipient(userID)
		if !ok {
			return fmt.Errorf("%w: %s on message %s", ErrRecipientNotFound, userID, m.ID)
		}
		now := h.now()
		if rcpt.ReadAt == nil {
			at := now
			rcpt.ReadAt = &at
		}
		if !slices.ContainsFunc(m.ReadReceipts, func(r messaging.ReadReceipt) bool {
			return r.UserID == userID && r.Channel == ch
		}) {
			m.ReadReceipts = append(m.ReadReceipts, messaging.ReadReceipt{UserID: userID, Channel: ch, ReadAt: now})
		}
		m.UpdatedAt = now
		return nil
	})
	return err
}

// Respond stores a recipient's reply and marks the recipient as having responded.
func (h *Hub) Respond(ctx context.Context, messageID string, r messaging.Response) (messaging.Message, error) {
	if r.Channel == "" {
		r.Channel = messaging.ChannelInApp
	}
	if err := validate(
		validator.Required("user_id", r.UserID),
		validator.Known("type", r.Type),
		validator.Known("channel", r.Channel),
	); err != nil {
		return messaging.Message{}, err
	}

	return h.store.UpdateMessage(ctx, messageID, func(m *messaging.Message) error {
		rcpt, ok := m.Recipient(r.UserID)
		if !ok {
			return fmt.Errorf("%w: %s on message %s", ErrRecipientNotFound, r.UserID, m.ID)
		}
		now := h.now()
		if r.RespondedAt.IsZero() {
			r.RespondedAt = now
		}
		if r.UserName == "" {
			r.UserName = rcpt.Name
		}
		rcpt.ResponseReceived = true
		m.Responses = append(m.Responses, r)
		m.UpdatedAt = now
		return nil
	})
}

func upsertDelivery(m *messaging.Message, rec messaging.DeliveryRecord) {
	for i, d := range m.Deliveries {
		if d.RecipientID == rec.RecipientID && d.Channel == rec.Channel {
			m.Deliveries[i] = rec
			return
		}
	}
	m.Deliveries = append(m.Deliveries, rec)
}

// recipientStatus folds the channel records of one recipient: delivered on any
// channel wins, then pending while any channel is still trying, then the most
// specific failure.
func recipientStatus(records []messaging.DeliveryRecord, userID string) messaging.DeliveryStatus {
	var delivered, pending, bounced, blocked bool
	for _, d := range records {
		if d.RecipientID != userID {
			continue
		}
		switch d.Status {
		case messaging.DeliveryDelivered:
			delivered = true
		case messaging.DeliveryPending:
			pending = true
		case messaging.DeliveryBounced:
			bounced = true
		case messaging.DeliveryBlocked:
			blocked = true
		case messaging.DeliveryFailed:
		}
	}
	switch {
	case delivered:
		return messaging.DeliveryDelivered
	case pending:
		return messaging.DeliveryPending
	case bounced:
		return messaging.DeliveryBounced
	case blocked:
		return messaging.DeliveryBlocked
	default:
		return messaging.DeliveryFailed
	}
}

// aggregate returns the lifecycle event the recipients' statuses call for, if any.
func aggregate(recipients []messaging.Recipient) (messaging.Event, bool) {
	var required, requiredDelivered, delivered, pending int
	for _, r := range recipients {
		if r.ResponseRequired {
			required++
		}
		switch r.DeliveryStatus {
		case messaging.DeliveryDelivered:
			delivered++
			if r.ResponseRequired {
				requiredDelivered++
			}
		case messaging.DeliveryPending:
			pending++
		case messaging.DeliveryFailed, messaging.DeliveryBounced, messaging.DeliveryBlocked:
		}
	}

	switch {
	case required > 0 && requiredDelivered == required:
		return messaging.EventComplete, true
	case required == 0 && delivered > 0:
		return messaging.EventComplete, true
	case pending > 0:
		return "", false
	case delivered > 0:
		return messaging.EventComplete, true
	default:
		return messaging.EventFail, true
	}
}
