package messaging

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Variables that NewMessageFromTemplate reads besides the template's own declarations.
const (
	VarSenderID   = "senderId"
	VarSenderName = "senderName"
	VarSenderRole = "senderRole"
	VarRegionID   = "regionId"
)

// RecipientNameKey is the variable holding a recipient's display name.
func RecipientNameKey(userID string) string { return userID + "_name" }

// RecipientRoleKey is the variable holding a recipient's role.
func RecipientRoleKey(userID string) string { return userID + "_role" }

// NewMessageFromTemplate renders tpl once and builds a draft message addressed to
// recipientIDs. Recipient-specific values must already be merged into vars.
func (r *Renderer) NewMessageFromTemplate(tpl Template, vars map[string]any, recipientIDs []string) (Message, error) {
	if tpl.ID == "" {
		return Message{}, fmt.Errorf("%w: template id is empty", ErrInvalidTemplate)
	}

	rendered, err := r.Render(tpl, vars)
	if err != nil {
		return Message{}, err
	}

	recipients := make([]Recipient, 0, len(recipientIDs))
	for _, userID := range recipientIDs {
		recipients = append(recipients, Recipient{
			ID:                uuid.NewString(),
			UserID:            userID,
			Name:              stringVar(vars, RecipientNameKey(userID), "Unknown"),
			Role:              stringVar(vars, RecipientRoleKey(userID), "Unknown"),
			PreferredChannels: slices.Clone(tpl.DefaultChannels),
			DeliveryStatus:    DeliveryPending,
			ResponseRequired:  tpl.Type == TypeConfirmationRequest,
		})
	}

	msg := Message{
		Type:       tpl.Type,
		Subject:    rendered.Subject,
		Content:    rendered.Content,
		SenderID:   stringVar(vars, VarSenderID, "system"),
		SenderName: stringVar(vars, VarSenderName, "System"),
		SenderRole: stringVar(vars, VarSenderRole, "System"),
		Recipients: recipients,
		Channels:   slices.Clone(tpl.DefaultChannels),
		Priority:   tpl.DefaultPriority,
		Category:   tpl.Category,
		TemplateID: tpl.ID,
		Status:     StatusDraft,
		RegionID:   stringVar(vars, VarRegionID, "default"),
	}
	if tpl.RequiresApproval {
		msg.ApprovalLevel = tpl.ApprovalLevel
	}
	return msg, nil
}

// NewMessageFromTemplate uses the default renderer.
func NewMessageFromTemplate(tpl Template, vars map[string]any, recipientIDs []string) (Message, error) {
	return defaultRenderer.NewMessageFromTemplate(tpl, vars, recipientIDs)
}

func stringVar(vars map[string]any, key, fallback string) string {
	v, ok := vars[key]
	if !ok || v == nil {
		return fallback
	}
	if s := plain(v); s != "" {
		return s
	}
	return fallback
}
