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

var emergencyChannels = []messaging.Channel{messaging.ChannelSMS, messaging.ChannelPhone, messaging.ChannelEmail}

// EmergencyAlert is a broadcast to a region, or to an explicit list of users.
type EmergencyAlert struct {
	Title      string              `json:"title"`
	Message    string              `json:"message"`
	RegionID   string              `json:"region_id"`
	Recipients []string            `json:"recipients,omitempty"`
	Channels   []messaging.Channel `json:"channels,omitempty"`
	SenderID   string              `json:"sender_id,omitempty"`
	SenderName string              `json:"sender_name,omitempty"`
	SenderRole string              `json:"sender_role,omitempty"`
}

// SendEmergencyAlert sends an emergency-priority alert. Without explicit
// recipients everyone in the region is addressed. Requires the emergency_alerts flag.
func (h *Hub) SendEmergencyAlert(ctx context.Context, alert EmergencyAlert) (SendResult, error) {
	ctx = feature.WithRegion(feature.WithUser(ctx, alert.SenderID), alert.RegionID)
	if err := h.requireFeature(ctx, FlagEmergencyAlerts); err != nil {
		return SendResult{}, err
	}
	if err := validate(
		validator.Required("title", alert.Title),
		validator.Required("message", alert.Message),
		validator.AllKnown("channels", alert.Channels),
	); err != nil {
		return SendResult{}, err
	}

	var contacts []messaging.Contact
	if len(alert.Recipients) > 0 {
		for _, id := range alert.Recipients {
			c, err := h.contact(ctx, id)
			if err != nil {
				return SendResult{}, fmt.Errorf("lookup recipient %s: %w", id, err)
			}
			contacts = append(contacts, c)
		}
	} else if alert.RegionID != "" {
		cs, err := h.store.ContactsInRegion(ctx, alert.RegionID)
		if err != nil {
			return SendResult{}, fmt.Errorf("lookup region %s: %w", alert.RegionID, err)
		}
		contacts = cs
	}
	if len(contacts) == 0 {
		return SendResult{}, ErrNoRecipients
	}

	channels := alert.Channels
	if len(channels) == 0 {
		channels = emergencyChannels
	}

	res, err := h.Send(ctx, messaging.Message{
		Type:       messaging.TypeEmergencyAlert,
		Subject:    alert.Title,
		Content:    alert.Message,
		SenderID:   alert.SenderID,
		SenderName: alert.SenderName,
		SenderRole: alert.SenderRole,
		Recipients: recipientsFromContacts(dedupeContacts(contacts)),
		Channels:   channels,
		Priority:   messaging.PriorityEmergency,
		Category:   messaging.CategoryEmergency,
		RegionID:   alert.RegionID,
	})
	if err != nil {
		return SendResult{}, err
	}

	h.logger.LogAttrs(ctx, slog.LevelWarn, "emergency alert sent",
		logger.MessageID(res.MessageID),
		slog.String("region_id", alert.RegionID),
		slog.Int("recipients", len(contacts)),
	)
	return res, nil
}

func dedupeContacts(contacts []messaging.Contact) []messaging.Contact {
	seen := make(map[string]bool, len(contacts))
	out := contacts[:0:0]
	for _, c := range contacts {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		out = append(out, c)
	}
	return out
}
