package messaging

import "time"

// Status is the lifecycle state of a message.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further events are accepted.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Event triggers a lifecycle transition.
type Event string

const (
	EventSchedule Event = "schedule"
	EventSend     Event = "send"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
)

// transitions maps [from][event] to the target status. Anything absent is rejected.
var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventSchedule: StatusScheduled,
		EventSend:     StatusSending,
		EventCancel:   StatusCancelled,
	},
	StatusScheduled: {
		EventSend:   StatusSending,
		EventCancel: StatusCancelled,
	},
	StatusSending: {
		EventComplete: StatusSent,
		EventFail:     StatusFailed,
	},
}

// NextStatus returns the status reached by firing ev from s.
func NextStatus(s Status, ev Event) (Status, error) {
	to, ok := transitions[s][ev]
	if !ok {
		return s, &TransitionError{From: s, Event: ev}
	}
	return to, nil
}

// CanFire reports whether ev is accepted in the message's current status.
func (m *Message) CanFire(ev Event) bool {
	_, ok := transitions[m.Status][ev]
	return ok
}

// Fire applies ev to the message, stamping UpdatedAt (and SentAt when the message starts sending).
func (m *Message) Fire(ev Event, at time.Time) error {
	if m.Status == "" {
		m.Status = StatusDraft
	}
	to, err := NextStatus(m.Status, ev)
	if err != nil {
		return err
	}
	m.Status = to
	m.UpdatedAt = at
	if to == StatusSending && m.SentAt == nil {
		sentAt := at
		m.SentAt = &sentAt
	}
	return nil
}

// Release moves a draft into the pipeline: scheduled when ScheduledFor is set, sending otherwise.
func (m *Message) Release(at time.Time) error {
	if m.ScheduledFor != nil {
		return m.Fire(EventSchedule, at)
	}
	return m.Fire(EventSend, at)
}
