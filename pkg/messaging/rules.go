package messaging

// EventType is a system event that can trigger notification rules.
type EventType string

const (
	EventAssignmentCreated   EventType = "assignment_created"
	EventAssignmentUpdated   EventType = "assignment_updated"
	EventAssignmentCancelled EventType = "assignment_cancelled"
	EventVolunteerAssigned   EventType = "volunteer_assigned"
	EventVolunteerConfirmed  EventType = "volunteer_confirmed"
	EventVolunteerDeclined   EventType = "volunteer_declined"
	EventDeadlineApproaching EventType = "deadline_approaching"
	EventCapacityExceeded    EventType = "capacity_exceeded"
	EventConflictDetected    EventType = "conflict_detected"
	EventEmergencyDeclared   EventType = "emergency_declared"
)

// ActionType is what a matched rule does.
type ActionType string

const (
	ActionSendMessage ActionType = "send_message"
	ActionSendEmail   ActionType = "send_email"
	ActionSendSMS     ActionType = "send_sms"
	ActionCreateTask  ActionType = "create_task"
	ActionEscalate    ActionType = "escalate"
)

// Action describes a message to produce when a rule fires.
type Action struct {
	Type          ActionType `json:"type" yaml:"type"`
	TemplateID    string     `json:"template_id,omitempty" yaml:"template_id,omitempty"`
	CustomMessage string     `json:"custom_message,omitempty" yaml:"custom_message,omitempty"`
	Channels      []Channel  `json:"channels,omitempty" yaml:"channels,omitempty"`
	DelayMinutes  int        `json:"delay_minutes,omitempty" yaml:"delay_minutes,omitempty"`
}

// RecipientType says how a rule recipient value is resolved to users.
type RecipientType string

const (
	RecipientUser        RecipientType = "user"
	RecipientRole        RecipientType = "role"
	RecipientGroup       RecipientType = "group"
	RecipientTradeTeam   RecipientType = "trade_team"
	RecipientProjectTeam RecipientType = "project_team"
	RecipientRegion      RecipientType = "region"
)

// RuleRecipient addresses a rule's messages. A Value starting with "$" is
// read from the event data, e.g. "$assignment.volunteerId".
type RuleRecipient struct {
	Type  RecipientType `json:"type" yaml:"type"`
	Value string        `json:"value" yaml:"value"`
}

// Rule auto-generates messages in response to system events.
type Rule struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	EventType   EventType       `json:"event_type" yaml:"event_type"`
	Conditions  []Condition     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions     []Action        `json:"actions" yaml:"actions"`
	Recipients  []RuleRecipient `json:"recipients" yaml:"recipients"`
	IsActive    bool            `json:"is_active" yaml:"is_active"`
	RegionID    string          `json:"region_id,omitempty" yaml:"region_id,omitempty"`
}

// Matches reports whether the rule is active, listens for eventType and all its conditions hold.
func (r Rule) Matches(eventType EventType, data EventData) bool {
	if !r.IsActive || r.EventType != eventType {
		return false
	}
	for _, c := range r.Conditions {
		if !c.Evaluate(data) {
			return false
		}
	}
	return true
}

// MatchRules returns the rules that fire for the event, preserving input order.
func MatchRules(eventType EventType, data EventData, rules []Rule) []Rule {
	var matched []Rule
	for _, r := range rules {
		if r.Matches(eventType, data) {
			matched = append(matched, r)
		}
	}
	return matched
}
