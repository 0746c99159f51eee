package commhub

import (
	"context"

	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// RuleRepository lists notification rules.
type RuleRepository interface {
	// ActiveRules returns the active rules listening for eventType, in a stable order.
	ActiveRules(ctx context.Context, eventType messaging.EventType) ([]messaging.Rule, error)
}

// TemplateRepository loads message templates.
type TemplateRepository interface {
	Template(ctx context.Context, id string) (messaging.Template, error)
}

// PreferenceRepository stores communication preferences.
type PreferenceRepository interface {
	// Preferences returns the stored preferences of the given users.
	// Users without preferences are absent from the map.
	Preferences(ctx context.Context, userIDs ...string) (map[string]messaging.Preferences, error)
	SavePreferences(ctx context.Context, prefs messaging.Preferences) error
}

// MessageRepository stores messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg messaging.Message) error
	Message(ctx context.Context, id string) (messaging.Message, error)
	// UpdateMessage applies fn to the stored message atomically and saves the result.
	// Nothing is saved when fn returns an error.
	UpdateMessage(ctx context.Context, id string, fn func(*messaging.Message) error) (messaging.Message, error)
}

// Directory resolves users, roles, regions and groups.
type Directory interface {
	Contact(ctx context.Context, userID string) (messaging.Contact, error)
	// ContactsByRole returns users holding role; an empty regionID matches every region.
	ContactsByRole(ctx context.Context, role, regionID string) ([]messaging.Contact, error)
	ContactsInRegion(ctx context.Context, regionID string) ([]messaging.Contact, error)
	Group(ctx context.Context, id string) (messaging.Group, error)
}

// CoordinationRepository stores elder coordination threads.
type CoordinationRepository interface {
	CreateCoordination(ctx context.Context, c ElderCoordination) error
	Coordination(ctx context.Context, id string) (ElderCoordination, error)
	// UpdateCoordination applies fn atomically. An error from fn discards the change.
	UpdateCoordination(ctx context.Context, id string, fn func(*ElderCoordination) error) (ElderCoordination, error)
}

// Store bundles every repository the hub needs.
type Store interface {
	RuleRepository
	TemplateRepository
	PreferenceRepository
	MessageRepository
	Directory
	CoordinationRepository
}

// Dispatcher queues plan entries for delivery. dispatch.Enqueuer implements it.
type Dispatcher interface {
	EnqueuePlan(ctx context.Context, plan []messaging.PlanEntry) ([]dispatch.Job, error)
	CancelMessage(ctx context.Context, messageID string) (int, error)
}
