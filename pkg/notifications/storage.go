package notifications

import (
	"context"
	"time"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Storage handles inbox persistence and retrieval.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, userID, notifID string) (*Notification, error)

	// List returns notifications for a user, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks notifications as read and returns the ones that were unread.
	MarkRead(ctx context.Context, userID string, at time.Time, notifIDs ...string) ([]Notification, error)

	// Delete removes notification(s).
	Delete(ctx context.Context, userID string, notifIDs ...string) error

	// CountUnread returns unread count for user.
	CountUnread(ctx context.Context, userID string) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int                  // Maximum number of notifications to return (0 = no limit)
	Offset     int                  // Number of notifications to skip for pagination
	OnlyUnread bool                 // When true, only return unread notifications
	Categories []messaging.Category // If specified, only return notifications in these categories
	Since      *time.Time           // If specified, only return notifications created after this time
}
