package commhub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// holdForApproval reports whether a prepared message must wait for approval.
// A flag evaluation error holds the message.
func (h *Hub) holdForApproval(ctx context.Context, msg *messaging.Message) bool {
	if !msg.ApprovalLevel.Required() {
		return false
	}
	ctx = feature.WithRegion(feature.WithUser(ctx, msg.SenderID), msg.RegionID)
	on, err := feature.Enabled(ctx, h.features, FlagMessageApproval, false)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "approval flag evaluation failed",
			logger.MessageID(msg.ID),
			logger.Error(err),
		)
		return true
	}
	return on
}

// hold stores msg as a draft without planning or queueing any delivery.
func (h *Hub) hold(ctx context.Context, msg *messaging.Message) (SendResult, error) {
	if err := h.store.CreateMessage(ctx, *msg); err != nil {
		return SendResult{}, fmt.Errorf("store message: %w", err)
	}
	h.logger.LogAttrs(ctx, slog.LevelInfo, "message held for approval",
		logger.MessageID(msg.ID),
		logger.TemplateID(msg.TemplateID),
		slog.String("approval_level", string(msg.ApprovalLevel)),
	)
	return SendResult{
		MessageID: msg.ID,
		Status:    msg.Status,
		Warnings:  []string{fmt.Sprintf("awaiting %s approval", msg.ApprovalLevel)},
	}, nil
}

// ApproveMessage releases a held draft on behalf of approverID, whose directory
// role must reach the message's approval level. Delivery is then planned and
// queued exactly as for Send.
func (h *Hub) ApproveMessage(ctx context.Context, messageID, approverID string) (SendResult, error) {
	if err := validate(validator.Required("approver_id", approverID)); err != nil {
		return SendResult{}, err
	}
	approver, err := h.store.Contact(ctx, approverID)
	if err != nil {
		return SendResult{}, fmt.Errorf("lookup approver %s: %w", approverID, err)
	}

	msg, err := h.store.Message(ctx, messageID)
	if err != nil {
		return SendResult{}, err
	}
	if !msg.AwaitingApproval() {
		return SendResult{}, fmt.Errorf("%w: message %s is not awaiting approval", ErrConflict, messageID)
	}
	if !msg.ApprovalLevel.SatisfiedBy(approver.Role) {
		return SendResult{}, fmt.Errorf("%w: %s approval needed, %s is %q",
			ErrApprovalDenied, msg.ApprovalLevel, approverID, approver.Role)
	}

	now := h.now()
	msg.ApprovedBy = approverID
	msg.ApprovedAt = &now
	msg.UpdatedAt = now

	h.logger.LogAttrs(ctx, slog.LevelInfo, "message approved",
		logger.MessageID(msg.ID),
		logger.UserID(approverID),
	)
	return h.deliver(ctx, &msg, h.saveApproved)
}

// saveApproved replaces a held draft, failing when another approval got there first.
func (h *Hub) saveApproved(ctx context.Context, msg messaging.Message) error {
	_, err := h.store.UpdateMessage(ctx, msg.ID, func(stored *messaging.Message) error {
		if !stored.AwaitingApproval() {
			return fmt.Errorf("%w: message %s is not awaiting approval", ErrConflict, msg.ID)
		}
		*stored = msg
		return nil
	})
	return err
}
