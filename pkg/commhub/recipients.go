package commhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// resolveRecipients expands rule recipients into unique contacts, in rule order.
// Entries that cannot be resolved are logged and skipped.
func (h *Hub) resolveRecipients(ctx context.Context, rule messaging.Rule, data messaging.EventData) []messaging.Contact {
	var out []messaging.Contact
	seen := make(map[string]bool)
	add := func(cs ...messaging.Contact) {
		for _, c := range cs {
			if c.UserID == "" || seen[c.UserID] {
				continue
			}
			seen[c.UserID] = true
			out = append(out, c)
		}
	}

	for _, rr := range rule.Recipients {
		for _, value := range recipientValues(rr.Value, data) {
			contacts, err := h.expandRecipient(ctx, rule, rr.Type, value)
			if err != nil {
				h.logger.LogAttrs(ctx, slog.LevelWarn, "skipping rule recipient",
					logger.RuleID(rule.ID),
					slog.String("recipient_type", string(rr.Type)),
					slog.String("recipient_value", value),
					logger.Error(err),
				)
				continue
			}
			add(contacts...)
		}
	}
	return out
}

func (h *Hub) expandRecipient(ctx context.Context, rule messaging.Rule, typ messaging.RecipientType, value string) ([]messaging.Contact, error) {
	switch typ {
	case messaging.RecipientUser:
		c, err := h.contact(ctx, value)
		if err != nil {
			return nil, err
		}
		return []messaging.Contact{c}, nil

	case messaging.RecipientRole:
		return h.store.ContactsByRole(ctx, value, rule.RegionID)

	case messaging.RecipientRegion:
		return h.store.ContactsInRegion(ctx, value)

	case messaging.RecipientGroup, messaging.RecipientTradeTeam, messaging.RecipientProjectTeam:
		g, err := h.store.Group(ctx, value)
		if err != nil {
			return nil, err
		}
		if typ == messaging.RecipientTradeTeam && g.Type != messaging.GroupTradeTeam ||
			typ == messaging.RecipientProjectTeam && g.Type != messaging.GroupProjectTeam {
			return nil, fmt.Errorf("group %s is a %s, not a %s", g.ID, g.Type, typ)
		}
		if !g.IsActive {
			return nil, fmt.Errorf("group %s is inactive", g.ID)
		}
		return groupContacts(g), nil

	default:
		return nil, fmt.Errorf("unknown recipient type %q", typ)
	}
}

// contact looks a user up in the directory. Users missing from it are still
// addressable by id.
func (h *Hub) contact(ctx context.Context, userID string) (messaging.Contact, error) {
	c, err := h.store.Contact(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return messaging.Contact{UserID: userID}, nil
	}
	return c, err
}

func groupContacts(g messaging.Group) []messaging.Contact {
	members := g.Receivers()
	out := make([]messaging.Contact, 0, len(members))
	for _, m := range members {
		out = append(out, messaging.Contact{
			UserID:   m.UserID,
			Name:     m.UserName,
			Role:     m.Role,
			RegionID: g.RegionID,
		})
	}
	return out
}

// recipientValues resolves a "$path" reference against the event data.
// The referenced field may hold a single id or a list of ids.
func recipientValues(value string, data messaging.EventData) []string {
	path, ok := strings.CutPrefix(value, "$")
	if !ok {
		return []string{value}
	}
	v, ok := data.Lookup(path)
	if !ok {
		return nil
	}
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := fmt.Sprint(item); item != nil && s != "" {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

func contactIDs(contacts []messaging.Contact) []string {
	ids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.UserID)
	}
	return ids
}

func recipientsFromContacts(contacts []messaging.Contact) []messaging.Recipient {
	out := make([]messaging.Recipient, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, messaging.Recipient{
			UserID: c.UserID,
			Name:   c.Name,
			Role:   c.Role,
		})
	}
	return out
}
