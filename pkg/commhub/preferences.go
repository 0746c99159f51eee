package commhub

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// Preferences returns the stored preferences of userID, or the defaults.
func (h *Hub) Preferences(ctx context.Context, userID string) (messaging.Preferences, error) {
	prefs, err := h.prefs.Preferences(ctx, userID)
	if err != nil {
		return messaging.Preferences{}, err
	}
	if p, ok := prefs[userID]; ok {
		return p, nil
	}
	return messaging.DefaultPreferences(userID), nil
}

// UpdatePreferences validates and replaces a user's preferences.
func (h *Hub) UpdatePreferences(ctx context.Context, prefs messaging.Preferences) (messaging.Preferences, error) {
	rules := []validator.Rule{validator.Required("user_id", prefs.UserID)}
	if prefs.QuietHours.Enabled {
		rules = append(rules, prefs.QuietHours.Rules("quiet_hours.")...)
	}
	for cat, cp := range prefs.Categories {
		field := "categories." + string(cat)
		rules = append(rules,
			validator.Known(field, cat),
			validator.AllKnown(field+".channels", cp.Channels),
		)
		if cp.Priority != "" {
			rules = append(rules, validator.Known(field+".priority", cp.Priority))
		}
	}
	if err := validator.Apply(rules...); err != nil {
		return messaging.Preferences{}, errors.Join(ErrInvalidMessage, err)
	}

	prefs.UpdatedAt = h.now()
	if err := h.prefs.SavePreferences(ctx, prefs); err != nil {
		return messaging.Preferences{}, fmt.Errorf("save preferences of %s: %w", prefs.UserID, err)
	}
	return prefs, nil
}
