// Package notifications implements the in-app channel as a per-user inbox.
//
// Inbox satisfies dispatch.Sender: each in-app job carries the JSON payload
// rendered by the planner, which the inbox decodes and stores as a
// Notification. When the user opens items with MarkRead, the inbox calls its
// ReadHandler so the hub can add a read receipt to the originating message.
//
// Storage is pluggable; MemoryStorage keeps inboxes in process memory.
//
// # Usage
//
//	inbox := notifications.NewInbox(notifications.NewMemoryStorage(),
//		notifications.WithReadHandler(func(ctx context.Context, messageID, userID string, at time.Time) error {
//			return hub.MarkRead(ctx, messageID, userID, messaging.ChannelInApp)
//		}),
//		notifications.WithTTL(30*24*time.Hour),
//	)
//
//	worker, err := dispatch.NewWorker(queue, dispatch.WithSender(messaging.ChannelInApp, inbox))
//
//	items, err := inbox.List(ctx, userID, notifications.ListOptions{OnlyUnread: true, Limit: 20})
package notifications
