package notifications

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidNotification is returned when creating a notification without ids.
	ErrInvalidNotification = errors.New("notification id and user id are required")
)

// MemoryStorage is an in-memory implementation of the Storage interface.
type MemoryStorage struct {
	notifications map[string][]Notification // userID -> notifications
	mu            sync.RWMutex
	now           func() time.Time
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
		now:           time.Now,
	}
}

func (s *MemoryStorage) Create(ctx context.Context, notif Notification) error {
	if notif.ID == "" || notif.UserID == "" {
		return ErrInvalidNotification
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = s.now()
	}
	notif.Actions = slices.Clone(notif.Actions)
	s.notifications[notif.UserID] = append(s.notifications[notif.UserID], notif)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications[userID] {
		if n.ID == notifID {
			return &n, nil
		}
	}
	return nil, ErrNotificationNotFound
}

func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	filtered := make([]Notification, 0, len(s.notifications[userID]))
	for _, n := range s.notifications[userID] {
		if n.IsExpired(now) {
			continue
		}
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, n.Category) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n)
	}

	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if opts.Offset >= len(filtered) {
		return []Notification{}, nil
	}
	end := len(filtered)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return filtered[opts.Offset:end], nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, userID string, at time.Time, notifIDs ...string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked []Notification
	items := s.notifications[userID]
	for i := range items {
		if items[i].Read || !slices.Contains(notifIDs, items[i].ID) {
			continue
		}
		items[i].MarkAsRead(at)
		marked = append(marked, items[i])
	}
	return marked, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, userID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[userID] = slices.DeleteFunc(s.notifications[userID], func(n Notification) bool {
		return slices.Contains(notifIDs, n.ID)
	})
	return nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, n := range s.notifications[userID] {
		if !n.Read && !n.IsExpired(now) {
			count++
		}
	}
	return count, nil
}
