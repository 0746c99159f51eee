package commhub

import (
	"context"
	"fmt"
	"maps"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// TemplateMessage addresses a stored template to a list of users.
type TemplateMessage struct {
	Variables  map[string]any `json:"variables"`
	Recipients []string       `json:"recipients"`
}

// SendFromTemplate renders a stored template for the given recipients and sends
// it. Names and roles come from the directory unless the variables carry them.
// Templates that require approval are held as drafts while the
// message_approval_required flag is on.
func (h *Hub) SendFromTemplate(ctx context.Context, templateID string, req TemplateMessage) (SendResult, error) {
	tpl, err := h.activeTemplate(ctx, templateID)
	if err != nil {
		return SendResult{}, err
	}

	vars := maps.Clone(req.Variables)
	if vars == nil {
		vars = make(map[string]any)
	}
	contacts := make([]messaging.Contact, 0, len(req.Recipients))
	for _, id := range req.Recipients {
		c, err := h.contact(ctx, id)
		if err != nil {
			return SendResult{}, fmt.Errorf("lookup recipient %s: %w", id, err)
		}
		contacts = append(contacts, c)
	}
	addRecipientVariables(vars, contacts)

	msg, err := h.renderer.NewMessageFromTemplate(tpl, vars, req.Recipients)
	if err != nil {
		return SendResult{}, err
	}
	return h.Send(ctx, msg)
}

func (h *Hub) activeTemplate(ctx context.Context, id string) (messaging.Template, error) {
	tpl, err := h.store.Template(ctx, id)
	if err != nil {
		return messaging.Template{}, fmt.Errorf("load template %s: %w", id, err)
	}
	if !tpl.IsActive {
		return messaging.Template{}, fmt.Errorf("%w: %s", ErrTemplateInactive, tpl.ID)
	}
	return tpl, nil
}
