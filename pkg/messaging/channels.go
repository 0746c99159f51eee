package messaging

import "slices"

// emergencyChannels is the escalation set used when a recipient allows emergency override.
var emergencyChannels = []Channel{ChannelSMS, ChannelPhone, ChannelEmail}

// SelectChannels returns the ordered, de-duplicated channels to attempt for a recipient.
// prefs may be nil when the recipient has no stored preferences.
func SelectChannels(msg *Message, rcpt Recipient, prefs *Preferences) []Channel {
	if msg.Priority == PriorityEmergency && prefs != nil && prefs.EmergencyOverride {
		return slices.Clone(emergencyChannels)
	}

	candidates := rcpt.PreferredChannels
	if len(candidates) == 0 {
		candidates = msg.Channels
	}

	out := make([]Channel, 0, len(candidates))
	for _, ch := range candidates {
		if slices.Contains(out, ch) {
			continue
		}
		if prefs != nil && !prefs.ChannelEnabled(ch) {
			continue
		}
		out = append(out, ch)
	}
	return out
}
