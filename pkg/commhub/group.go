package commhub

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// GroupMessage is a message posted to a communication group.
type GroupMessage struct {
	SenderID   string              `json:"sender_id"`
	SenderName string              `json:"sender_name"`
	SenderRole string              `json:"sender_role"`
	Subject    string              `json:"subject"`
	Content    string              `json:"content"`
	Priority   messaging.Priority  `json:"priority,omitempty"`
	Category   messaging.Category  `json:"category,omitempty"`
	Channels   []messaging.Channel `json:"channels,omitempty"`
}

// SendGroupMessage sends gm to every active member of the group who can receive messages.
func (h *Hub) SendGroupMessage(ctx context.Context, groupID string, gm GroupMessage) (SendResult, error) {
	g, err := h.store.Group(ctx, groupID)
	if err != nil {
		return SendResult{}, err
	}
	if !g.IsActive {
		return SendResult{}, fmt.Errorf("%w: group %s is inactive", ErrConflict, g.ID)
	}

	contacts := groupContacts(g)
	if len(contacts) == 0 {
		return SendResult{}, fmt.Errorf("%w: group %s has no receiving members", ErrNoRecipients, g.ID)
	}

	return h.Send(ctx, messaging.Message{
		Type:              messaging.TypeGroupMessage,
		Subject:           gm.Subject,
		Content:           gm.Content,
		SenderID:          gm.SenderID,
		SenderName:        gm.SenderName,
		SenderRole:        gm.SenderRole,
		Recipients:        recipientsFromContacts(contacts),
		Channels:          gm.Channels,
		Priority:          gm.Priority,
		Category:          gm.Category,
		RegionID:          g.RegionID,
		RelatedEntityID:   g.ID,
		RelatedEntityType: string(g.Type),
	})
}
