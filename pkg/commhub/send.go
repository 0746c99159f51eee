package commhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// SendResult summarizes a released message.
type SendResult struct {
	MessageID                string           `json:"message_id"`
	Status                   messaging.Status `json:"status"`
	EstimatedDeliveryMinutes int              `json:"estimated_delivery_minutes"`
	Warnings                 []string         `json:"warnings,omitempty"`
	Jobs                     int              `json:"jobs"`
}

// Send validates msg, plans its delivery, stores it and hands the plan to the dispatcher.
// Missing id, type, priority, category and channels are defaulted.
func (h *Hub) Send(ctx context.Context, msg messaging.Message) (SendResult, error) {
	if err := h.prepare(&msg); err != nil {
		return SendResult{}, err
	}
	if h.holdForApproval(ctx, &msg) {
		return h.hold(ctx, &msg)
	}
	return h.deliver(ctx, &msg, h.store.CreateMessage)
}

// Message returns a stored message.
func (h *Hub) Message(ctx context.Context, id string) (messaging.Message, error) {
	return h.store.Message(ctx, id)
}

// Cancel stops a draft or scheduled message and drops its queued deliveries.
// It returns the number of deliveries removed from the queue.
func (h *Hub) Cancel(ctx context.Context, messageID string) (int, error) {
	_, err := h.store.UpdateMessage(ctx, messageID, func(m *messaging.Message) error {
		return m.Fire(messaging.EventCancel, h.now())
	})
	if err != nil {
		return 0, conflict(err)
	}

	dropped, err := h.dispatcher.CancelMessage(ctx, messageID)
	if err != nil {
		return 0, fmt.Errorf("cancel deliveries of %s: %w", messageID, err)
	}

	h.logger.LogAttrs(ctx, slog.LevelInfo, "message cancelled",
		logger.MessageID(messageID),
		slog.Int("dropped_jobs", dropped),
	)
	return dropped, nil
}

func (h *Hub) prepare(msg *messaging.Message) error {
	if msg.Type == "" {
		msg.Type = messaging.TypeNotification
	}
	if msg.Priority == "" {
		msg.Priority = messaging.PriorityNormal
	}
	if msg.Category == "" {
		msg.Category = messaging.CategoryGeneral
	}
	if len(msg.Channels) == 0 {
		msg.Channels = []messaging.Channel{messaging.ChannelInApp}
	}

	if err := h.validateMessage(msg); err != nil {
		return err
	}

	now := h.now()
	for i := range msg.Recipients {
		r := &msg.Recipients[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.DeliveryStatus = messaging.DeliveryPending
		r.ResponseReceived = false
		r.ReadAt = nil
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SenderID == "" {
		msg.SenderID = "system"
	}
	msg.Status = messaging.StatusDraft
	msg.ApprovedBy = ""
	msg.ApprovedAt = nil
	msg.Deliveries = nil
	msg.ReadReceipts = nil
	msg.Responses = nil
	msg.SentAt = nil
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return nil
}

func (h *Hub) validateMessage(msg *messaging.Message) error {
	ids := make([]string, len(msg.Recipients))
	for i, r := range msg.Recipients {
		ids[i] = r.UserID
	}
	rules := []validator.Rule{
		validator.Known("type", msg.Type),
		validator.Known("priority", msg.Priority),
		validator.Known("category", msg.Category),
		validator.Required("subject", msg.Subject),
		validator.Required("content", msg.Content),
		validator.MaxLen("content", msg.Content, h.cfg.MaxMessageLength),
		validator.AllKnown("channels", msg.Channels),
		validator.OneOf("approval_level", msg.ApprovalLevel, []messaging.ApprovalLevel{
			"", messaging.ApprovalNone, messaging.ApprovalOverseer, messaging.ApprovalElder, messaging.ApprovalBranch,
		}),
		validator.MaxItems("recipients", msg.Recipients, h.cfg.MaxRecipientsPerMessage),
		validator.Unique("recipients", ids),
	}
	for i, r := range msg.Recipients {
		field := fmt.Sprintf("recipients[%d]", i)
		rules = append(rules,
			validator.Required(field+".user_id", r.UserID),
			validator.AllKnown(field+".preferred_channels", r.PreferredChannels),
		)
	}

	err := validator.Apply(rules...)
	switch {
	case len(msg.Recipients) == 0:
		return errors.Join(ErrNoRecipients, err)
	case err != nil:
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}

// deliver plans a prepared draft, persists it with save and queues its entries.
func (h *Hub) deliver(ctx context.Context, msg *messaging.Message, save func(context.Context, messaging.Message) error) (SendResult, error) {
	userIDs := make([]string, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		userIDs = append(userIDs, r.UserID)
	}
	prefs, err := h.prefs.Preferences(ctx, userIDs...)
	if err != nil {
		return SendResult{}, fmt.Errorf("load preferences: %w", err)
	}

	planning, warnings := h.applyCategoryPreferences(msg, prefs)
	result := h.planner.Process(planning, prefs)
	plan, flagWarnings := h.filterDisabledChannels(ctx, result.Plan)
	warnings = append(warnings, result.Warnings...)
	warnings = append(warnings, flagWarnings...)

	now := h.now()
	planned := make(map[string]bool, len(plan))
	for _, e := range plan {
		planned[e.RecipientID] = true
		msg.Deliveries = append(msg.Deliveries, messaging.DeliveryRecord{
			RecipientID: e.RecipientID,
			Channel:     e.Channel,
			Status:      messaging.DeliveryPending,
			UpdatedAt:   now,
		})
	}
	// Nothing will ever be delivered to a recipient without plan entries.
	for i := range msg.Recipients {
		if !planned[msg.Recipients[i].UserID] {
			msg.Recipients[i].DeliveryStatus = messaging.DeliveryBlocked
		}
	}

	if len(plan) == 0 {
		if err := failMessage(msg, now); err != nil {
			return SendResult{}, err
		}
	} else if err := msg.Release(now); err != nil {
		return SendResult{}, err
	}

	if err := save(ctx, *msg); err != nil {
		return SendResult{}, fmt.Errorf("store message: %w", err)
	}

	res := SendResult{
		MessageID: msg.ID,
		Status:    msg.Status,
		Warnings:  warnings,
	}

	if len(plan) == 0 {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "message has no deliverable recipients",
			logger.MessageID(msg.ID),
			slog.Any("warnings", warnings),
		)
		return res, nil
	}

	jobs, err := h.dispatcher.EnqueuePlan(ctx, plan)
	if err != nil {
		if _, uerr := h.store.UpdateMessage(ctx, msg.ID, func(m *messaging.Message) error {
			return failMessage(m, h.now())
		}); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return SendResult{}, fmt.Errorf("enqueue deliveries of %s: %w", msg.ID, err)
	}

	res.Jobs = len(jobs)
	res.EstimatedDeliveryMinutes = result.EstimatedDeliveryMinutes
	h.logger.LogAttrs(ctx, slog.LevelInfo, "message released",
		logger.MessageID(msg.ID),
		slog.String("type", string(msg.Type)),
		slog.String("status", string(msg.Status)),
		slog.Int("recipients", len(msg.Recipients)),
		slog.Int("jobs", len(jobs)),
		slog.Int("warnings", len(warnings)),
	)
	return res, nil
}

// applyCategoryPreferences returns the copy of msg handed to the planner.
// Recipients who opted out of the category are left out and marked blocked on msg;
// emergencies ignore opt-outs.
func (h *Hub) applyCategoryPreferences(msg *messaging.Message, prefs map[string]messaging.Preferences) (*messaging.Message, []string) {
	planning := *msg
	planning.Recipients = make([]messaging.Recipient, 0, len(msg.Recipients))

	var warnings []string
	for i, r := range msg.Recipients {
		p, ok := prefs[r.UserID]
		if !ok {
			planning.Recipients = append(planning.Recipients, r)
			continue
		}
		cp, ok := p.Category(msg.Category)
		if !ok {
			planning.Recipients = append(planning.Recipients, r)
			continue
		}
		if !cp.Enabled && msg.Priority != messaging.PriorityEmergency {
			msg.Recipients[i].DeliveryStatus = messaging.DeliveryBlocked
			warnings = append(warnings, fmt.Sprintf("recipient %s has disabled %s messages", r.UserID, msg.Category))
			continue
		}
		if len(r.PreferredChannels) == 0 && len(cp.Channels) > 0 {
			r.PreferredChannels = slices.Clone(cp.Channels)
		}
		planning.Recipients = append(planning.Recipients, r)
	}
	return &planning, warnings
}

func (h *Hub) filterDisabledChannels(ctx context.Context, plan []messaging.PlanEntry) ([]messaging.PlanEntry, []string) {
	enabled := make(map[messaging.Channel]bool)
	var warnings []string

	out := plan[:0:0]
	for _, e := range plan {
		on, seen := enabled[e.Channel]
		if !seen {
			on = h.channelEnabled(ctx, e.Channel)
			enabled[e.Channel] = on
			if !on {
				warnings = append(warnings, fmt.Sprintf("channel %s is disabled", e.Channel))
			}
		}
		if on {
			out = append(out, e)
		}
	}
	return out, warnings
}

func (h *Hub) channelEnabled(ctx context.Context, ch messaging.Channel) bool {
	on, err := feature.Enabled(ctx, h.features, ChannelFlag(ch), true)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "channel flag evaluation failed",
			logger.Channel(ch),
			logger.Error(err),
		)
		return true
	}
	return on
}

// requireFeature checks a gated operation's flag.
func (h *Hub) requireFeature(ctx context.Context, flag string) error {
	err := feature.Require(ctx, h.features, flag)
	if errors.Is(err, feature.ErrDisabled) {
		return errors.Join(ErrFeatureDisabled, err)
	}
	return err
}

// failMessage moves msg to failed from any non-terminal status.
func failMessage(msg *messaging.Message, at time.Time) error {
	if msg.Status == "" || msg.Status == messaging.StatusDraft || msg.Status == messaging.StatusScheduled {
		if err := msg.Fire(messaging.EventSend, at); err != nil {
			return err
		}
	}
	return msg.Fire(messaging.EventFail, at)
}

// conflict tags lifecycle violations with ErrConflict.
func conflict(err error) error {
	if errors.Is(err, messaging.ErrNoTransition) {
		return errors.Join(ErrConflict, err)
	}
	return err
}
