package messaging

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/commhub/pkg/validator"
)

// DeliveryTime returns when a message should be delivered to a recipient with prefs.
// Emergencies go out at now, an explicit schedule is used verbatim, and a recipient
// inside quiet hours is deferred to the end of quiet hours on the following day.
func DeliveryTime(msg *Message, prefs *Preferences, now time.Time) time.Time {
	if msg.Priority == PriorityEmergency {
		return now
	}
	if msg.ScheduledFor != nil {
		return *msg.ScheduledFor
	}
	if prefs == nil || !prefs.QuietHours.Enabled {
		return now
	}
	if next, ok := prefs.QuietHours.NextAvailable(now); ok {
		return next
	}
	return now
}

// Contains reports whether now falls inside the window. A window whose start is
// after its end spans midnight. Malformed bounds never match.
func (q QuietHours) Contains(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}

	local := now.In(q.location(now))
	current := local.Hour()*60 + local.Minute()
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// NextAvailable returns tomorrow at the end of the window when now is inside it.
// The second result is false when delivery does not need to be deferred.
func (q QuietHours) NextAvailable(now time.Time) (time.Time, bool) {
	if !q.Contains(now) {
		return time.Time{}, false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return time.Time{}, false
	}

	loc := q.location(now)
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, end/60, end%60, 0, 0, loc)
	return next.In(now.Location()), true
}

func (q QuietHours) location(now time.Time) *time.Location {
	if q.Timezone != "" {
		if loc, err := time.LoadLocation(q.Timezone); err == nil {
			return loc
		}
	}
	return now.Location()
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Rules checks that both bounds are "HH:MM" clock values and the time zone, if any, loads.
// Field names are prefixed with prefix.
func (q QuietHours) Rules(prefix string) []validator.Rule {
	return []validator.Rule{
		validator.ClockTime(prefix+"start", q.Start),
		validator.ClockTime(prefix+"end", q.End),
		validator.Timezone(prefix+"timezone", q.Timezone),
	}
}

// Validate applies Rules.
func (q QuietHours) Validate() error {
	return validator.Apply(q.Rules("")...)
}
