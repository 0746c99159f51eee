package messaging

import "time"

// QuietHours is a daily window during which non-emergency delivery is deferred.
// Start and End use 24h "HH:MM". A window with Start > End spans midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// CategoryPreference overrides delivery for a single message category.
type CategoryPreference struct {
	Enabled  bool      `json:"enabled" yaml:"enabled"`
	Channels []Channel `json:"channels,omitempty" yaml:"channels,omitempty"`
	Priority Priority  `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Preferences are a user's communication settings.
type Preferences struct {
	UserID            string                          `json:"user_id" yaml:"user_id"`
	EmailEnabled      bool                            `json:"email_enabled" yaml:"email_enabled"`
	SMSEnabled        bool                            `json:"sms_enabled" yaml:"sms_enabled"`
	InAppEnabled      bool                            `json:"in_app_enabled" yaml:"in_app_enabled"`
	PushEnabled       bool                            `json:"push_enabled" yaml:"push_enabled"`
	PhoneCallsEnabled bool                            `json:"phone_calls_enabled" yaml:"phone_calls_enabled"`
	QuietHours        QuietHours                      `json:"quiet_hours" yaml:"quiet_hours"`
	EmergencyOverride bool                            `json:"emergency_override" yaml:"emergency_override"`
	Categories        map[Category]CategoryPreference `json:"categories,omitempty" yaml:"categories,omitempty"`
	UpdatedAt         time.Time                       `json:"updated_at" yaml:"-"`
}

// DefaultPreferences enables every channel and leaves quiet hours off.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:            userID,
		EmailEnabled:      true,
		SMSEnabled:        true,
		InAppEnabled:      true,
		PushEnabled:       true,
		PhoneCallsEnabled: true,
	}
}

// ChannelEnabled reports whether ch is switched on. Channels without a
// matching flag are always allowed.
func (p Preferences) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelInApp:
		return p.InAppEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelPhone:
		return p.PhoneCallsEnabled
	default:
		return true
	}
}

// DeliveryPriority is the priority msg is ranked and retried with for this user:
// the category's priority override when one is set. Emergencies keep theirs.
func (p Preferences) DeliveryPriority(msg *Message) Priority {
	if msg.Priority == PriorityEmergency {
		return msg.Priority
	}
	if cp, ok := p.Category(msg.Category); ok && cp.Priority.Valid() {
		return cp.Priority
	}
	return msg.Priority
}

// Category returns the override for c, if one is configured.
func (p Preferences) Category(c Category) (CategoryPreference, bool) {
	cp, ok := p.Categories[c]
	return cp, ok
}
