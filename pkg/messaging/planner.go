package messaging

import (
	"fmt"
	"math"
	"time"
)

// PlanEntry is one (recipient, channel) unit of work for an external sender.
type PlanEntry struct {
	MessageID     string    `json:"message_id"`
	RecipientID   string    `json:"recipient_id"`
	Channel       Channel   `json:"channel"`
	Priority      int       `json:"priority"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	RetryAttempts int       `json:"retry_attempts"`
	Subject       string    `json:"subject"`
	Content       string    `json:"content"`
}

// PlanResult is the outcome of planning a message.
type PlanResult struct {
	Plan                     []PlanEntry `json:"plan"`
	EstimatedDeliveryMinutes int         `json:"estimated_delivery_minutes"`
	Warnings                 []string    `json:"warnings,omitempty"`
}

// Planner builds delivery plans. It only holds configuration and is safe for concurrent use.
type Planner struct {
	now       func() time.Time
	formatter *Formatter
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBrand sets the signature used in email footers.
func WithBrand(brand string) PlannerOption {
	return func(p *Planner) {
		p.formatter = NewFormatter(brand)
	}
}

// NewPlanner creates a planner using the wall clock and the default brand.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		now:       time.Now,
		formatter: NewFormatter(DefaultBrand),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process plans delivery of msg to every recipient. prefs is keyed by user id;
// recipients without an entry are planned without preference filtering.
// A recipient with no usable channel gets a warning instead of entries.
// A category priority override changes an entry's score and retry budget,
// never its channels or delivery time.
func (p *Planner) Process(msg *Message, prefs map[string]Preferences) PlanResult {
	now := p.now()
	var result PlanResult

	// Content only depends on the channel, so render each channel once.
	rendered := make(map[Channel]string, len(Channels))

	for _, rcpt := range msg.Recipients {
		var rp *Preferences
		priority := msg.Priority
		if pref, ok := prefs[rcpt.UserID]; ok {
			rp = &pref
			priority = pref.DeliveryPriority(msg)
		}

		channels := SelectChannels(msg, rcpt, rp)
		if len(channels) == 0 {
			result.Warnings = append(result.Warnings, NoChannelWarning(rcpt.UserID))
			continue
		}

		at := DeliveryTime(msg, rp, now)
		for _, ch := range channels {
			content, ok := rendered[ch]
			if !ok {
				content = p.formatter.Format(msg, ch)
				rendered[ch] = content
			}

			result.Plan = append(result.Plan, PlanEntry{
				MessageID:     msg.ID,
				RecipientID:   rcpt.UserID,
				Channel:       ch,
				Priority:      Score(priority, ch),
				ScheduledFor:  at,
				RetryAttempts: RetryAttempts(ch, priority),
				Subject:       msg.Subject,
				Content:       content,
			})

			if eta := minutesUntil(now, at); eta > result.EstimatedDeliveryMinutes {
				result.EstimatedDeliveryMinutes = eta
			}
		}
	}
	return result
}

// NoChannelWarning is the warning recorded for a recipient with nothing to deliver over.
func NoChannelWarning(userID string) string {
	return fmt.Sprintf("no available delivery channels for recipient %s", userID)
}

func minutesUntil(now, at time.Time) int {
	d := at.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
