package commhub

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// TriggerResult reports what an event produced.
type TriggerResult struct {
	TriggeredCount int      `json:"triggered_count"`
	MessageIDs     []string `json:"message_ids"`
}

// TriggerNotification runs the active rules for eventType against data and
// sends one message per matched rule action. A failing rule or action is
// logged and skipped; only failing to load rules is an error.
func (h *Hub) TriggerNotification(ctx context.Context, eventType messaging.EventType, data messaging.EventData) (TriggerResult, error) {
	rules, err := h.store.ActiveRules(ctx, eventType)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("load rules for %s: %w", eventType, err)
	}

	matched := messaging.MatchRules(eventType, data, rules)
	result := TriggerResult{TriggeredCount: len(matched), MessageIDs: []string{}}

	for _, rule := range matched {
		log := h.logger.With(logger.EventType(eventType), logger.RuleID(rule.ID))

		contacts := h.resolveRecipients(ctx, rule, data)
		if len(contacts) == 0 {
			log.LogAttrs(ctx, slog.LevelWarn, "rule matched without recipients")
			continue
		}

		for i, action := range rule.Actions {
			if action.Type == messaging.ActionCreateTask {
				log.LogAttrs(ctx, slog.LevelInfo, "task actions are not handled by the hub",
					slog.Int("action", i))
				continue
			}

			msg, err := h.actionMessage(ctx, eventType, rule, action, data, contacts)
			if err != nil {
				log.LogAttrs(ctx, slog.LevelError, "failed to build rule message",
					slog.Int("action", i),
					logger.TemplateID(action.TemplateID),
					logger.Error(err),
				)
				continue
			}

			res, err := h.Send(ctx, msg)
			if err != nil {
				log.LogAttrs(ctx, slog.LevelError, "failed to send rule message",
					slog.Int("action", i),
					logger.Error(err),
				)
				continue
			}
			result.MessageIDs = append(result.MessageIDs, res.MessageID)
		}
	}

	h.logger.LogAttrs(ctx, slog.LevelInfo, "event processed",
		logger.EventType(eventType),
		slog.Int("rules", len(rules)),
		slog.Int("triggered", result.TriggeredCount),
		slog.Int("messages", len(result.MessageIDs)),
	)
	return result, nil
}

// actionMessage renders the message a rule action asks for.
func (h *Hub) actionMessage(
	ctx context.Context,
	eventType messaging.EventType,
	rule messaging.Rule,
	action messaging.Action,
	data messaging.EventData,
	contacts []messaging.Contact,
) (messaging.Message, error) {
	vars := eventVariables(eventType, rule, data, contacts)
	channels := actionChannels(action)

	var tpl messaging.Template
	switch {
	case action.TemplateID != "":
		t, err := h.activeTemplate(ctx, action.TemplateID)
		if err != nil {
			return messaging.Message{}, err
		}
		tpl = t
	case action.CustomMessage != "":
		tpl = customTemplate(rule, action, vars, channels)
	default:
		return messaging.Message{}, fmt.Errorf("%w: action has neither template nor custom message", ErrInvalidMessage)
	}

	msg, err := h.renderer.NewMessageFromTemplate(tpl, vars, contactIDs(contacts))
	if err != nil {
		return messaging.Message{}, err
	}

	if len(channels) > 0 {
		msg.Channels = slices.Clone(channels)
		for i := range msg.Recipients {
			msg.Recipients[i].PreferredChannels = slices.Clone(channels)
		}
	}
	if action.Type == messaging.ActionEscalate {
		if msg.Priority == "" {
			msg.Priority = messaging.PriorityNormal
		}
		msg.Priority = msg.Priority.Raise()
	}
	if action.DelayMinutes > 0 {
		at := h.now().Add(time.Duration(action.DelayMinutes) * time.Minute)
		msg.ScheduledFor = &at
	}
	if rule.RegionID != "" {
		msg.RegionID = rule.RegionID
	}
	msg.RelatedEntityType = string(eventType)
	if id, ok := vars["entityId"].(string); ok {
		msg.RelatedEntityID = id
	}
	return msg, nil
}

func actionChannels(a messaging.Action) []messaging.Channel {
	if len(a.Channels) > 0 {
		return a.Channels
	}
	switch a.Type {
	case messaging.ActionSendEmail:
		return []messaging.Channel{messaging.ChannelEmail}
	case messaging.ActionSendSMS:
		return []messaging.Channel{messaging.ChannelSMS}
	case messaging.ActionSendMessage, messaging.ActionEscalate, messaging.ActionCreateTask:
	}
	return nil
}

// customTemplate wraps a free-text action so it renders like a template:
// every known variable may be referenced, none is required.
func customTemplate(rule messaging.Rule, action messaging.Action, vars map[string]any, channels []messaging.Channel) messaging.Template {
	names := slices.Sorted(maps.Keys(vars))
	variables := make([]messaging.Variable, 0, len(names))
	for _, name := range names {
		variables = append(variables, messaging.Variable{Name: name, Type: messaging.VarText})
	}
	if len(channels) == 0 {
		channels = []messaging.Channel{messaging.ChannelInApp}
	}
	return messaging.Template{
		ID:              "rule:" + rule.ID,
		Name:            rule.Name,
		Category:        messaging.CategoryGeneral,
		Type:            messaging.TypeNotification,
		Subject:         rule.Name,
		Content:         action.CustomMessage,
		Variables:       variables,
		DefaultChannels: channels,
		DefaultPriority: messaging.PriorityNormal,
		IsActive:        true,
	}
}

// eventVariables flattens event data into dot-separated variable names and adds
// rule metadata and recipient names.
func eventVariables(eventType messaging.EventType, rule messaging.Rule, data messaging.EventData, contacts []messaging.Contact) map[string]any {
	vars := make(map[string]any)
	flatten("", map[string]any(data), vars)

	vars["eventType"] = string(eventType)
	vars["ruleId"] = rule.ID
	vars["ruleName"] = rule.Name
	if rule.RegionID != "" {
		if _, ok := vars[messaging.VarRegionID]; !ok {
			vars[messaging.VarRegionID] = rule.RegionID
		}
	}

	addRecipientVariables(vars, contacts)
	return vars
}

// addRecipientVariables fills in directory names and roles that vars does not set.
func addRecipientVariables(vars map[string]any, contacts []messaging.Contact) {
	for _, c := range contacts {
		if _, ok := vars[messaging.RecipientNameKey(c.UserID)]; !ok && c.Name != "" {
			vars[messaging.RecipientNameKey(c.UserID)] = c.Name
		}
		if _, ok := vars[messaging.RecipientRoleKey(c.UserID)]; !ok && c.Role != "" {
			vars[messaging.RecipientRoleKey(c.UserID)] = c.Role
		}
	}
}

func flatten(prefix string, node map[string]any, out map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		case messaging.EventData:
			flatten(key, child, out)
		default:
			out[key] = v
		}
	}
}
