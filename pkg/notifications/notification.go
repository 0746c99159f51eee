package notifications

import (
	"time"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Notification is one in-app inbox item.
type Notification struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	MessageID string                `json:"message_id"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	Priority  messaging.Priority    `json:"priority"`
	Category  messaging.Category    `json:"category"`
	Sender    messaging.InAppSender `json:"sender"`
	Actions   []string              `json:"actions,omitempty"`
	Read      bool                  `json:"read"`
	ReadAt    *time.Time            `json:"read_at,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
}

// IsExpired reports whether the notification expired before now.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// MarkAsRead marks the notification as read at the given time.
func (n *Notification) MarkAsRead(at time.Time) {
	n.Read = true
	n.ReadAt = &at
}
