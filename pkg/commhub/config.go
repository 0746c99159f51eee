package commhub

import (
	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Feature flag names.
const (
	FlagElderCoordination = "elder_coordination"
	FlagEmergencyAlerts   = "emergency_alerts"
	FlagMessageApproval   = "message_approval_required"
)

// ChannelFlag is the name of the flag that switches a delivery channel.
// Channels without a registered flag stay enabled.
func ChannelFlag(ch messaging.Channel) string {
	return "channel_" + string(ch)
}

// Config holds hub configuration.
type Config struct {
	Brand      string `env:"COMMHUB_BRAND" envDefault:"Communication Hub"`
	Language   string `env:"COMMHUB_LANGUAGE" envDefault:"en"`
	DateLayout string `env:"COMMHUB_DATE_LAYOUT" envDefault:"1/2/2006"`

	MaxRecipientsPerMessage int `env:"COMMHUB_MAX_RECIPIENTS_PER_MESSAGE" envDefault:"500"`
	MaxMessageLength        int `env:"COMMHUB_MAX_MESSAGE_LENGTH" envDefault:"5000"`

	Features FeaturesConfig
}

// FeaturesConfig switches channels and gated operations.
type FeaturesConfig struct {
	Email             bool `env:"FEATURE_EMAIL" envDefault:"true"`
	SMS               bool `env:"FEATURE_SMS" envDefault:"true"`
	PushNotifications bool `env:"FEATURE_PUSH_NOTIFICATIONS" envDefault:"false"`
	PhoneCalls        bool `env:"FEATURE_PHONE_CALLS" envDefault:"false"`
	EmergencyAlerts   bool `env:"FEATURE_EMERGENCY_ALERTS" envDefault:"true"`
	ElderCoordination bool `env:"FEATURE_ELDER_COORDINATION" envDefault:"false"`
	// Holds messages whose template requires approval until someone approves them.
	MessageApproval bool `env:"FEATURE_MESSAGE_APPROVAL_REQUIRED" envDefault:"false"`

	// Limits elder coordination to these regions. Empty means every region.
	ElderCoordinationRegions []string `env:"FEATURE_ELDER_COORDINATION_REGIONS" envSeparator:","`
}

// Flags converts the configuration into feature flags.
func (c FeaturesConfig) Flags() []*feature.Flag {
	flags := []*feature.Flag{
		{Name: ChannelFlag(messaging.ChannelEmail), Enabled: c.Email, Tags: []string{"channel"}},
		{Name: ChannelFlag(messaging.ChannelSMS), Enabled: c.SMS, Tags: []string{"channel"}},
		{Name: ChannelFlag(messaging.ChannelPush), Enabled: c.PushNotifications, Tags: []string{"channel"}},
		{Name: ChannelFlag(messaging.ChannelPhone), Enabled: c.PhoneCalls, Tags: []string{"channel"}},
		{Name: FlagEmergencyAlerts, Enabled: c.EmergencyAlerts, Tags: []string{"operation"}},
		{Name: FlagMessageApproval, Enabled: c.MessageApproval, Tags: []string{"operation"}},
	}

	elder := &feature.Flag{Name: FlagElderCoordination, Enabled: c.ElderCoordination, Tags: []string{"operation"}}
	if len(c.ElderCoordinationRegions) > 0 {
		elder.Strategy = feature.NewTargetedStrategy(feature.TargetCriteria{Regions: c.ElderCoordinationRegions})
	}
	return append(flags, elder)
}

// NewFeatureProvider builds an in-memory flag provider from configuration.
func NewFeatureProvider(c FeaturesConfig) (*feature.MemoryProvider, error) {
	return feature.NewMemoryProvider(c.Flags()...)
}
