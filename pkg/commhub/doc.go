// Package commhub is the communication service of the volunteer coordination app.
//
// A Hub turns system events and ad hoc requests into messages, plans their
// delivery with pkg/messaging, persists them through a Store and hands the plan
// to a Dispatcher. Channel senders report back through HandleOutcome, which
// keeps per-recipient delivery status and the message lifecycle current.
//
// Channels can be switched off with feature flags named by ChannelFlag; planned
// deliveries on a disabled channel are dropped with a warning. Emergency alerts
// and elder coordination are gated operations and fail with ErrFeatureDisabled
// unless their flag is on.
//
// # Usage
//
//	flags, err := commhub.NewFeatureProvider(cfg.Features)
//	hub, err := commhub.New(cfg, store, enqueuer,
//		commhub.WithFeatures(flags),
//		commhub.WithLogger(log),
//	)
//
//	worker, err := dispatch.NewWorker(queue,
//		dispatch.WithSender(messaging.ChannelInApp, inbox),
//		dispatch.WithResultHandler(hub.HandleOutcome),
//	)
//
//	res, err := hub.TriggerNotification(ctx, messaging.EventVolunteerAssigned, messaging.EventData{
//		"assignment": map[string]any{"volunteerId": "u1", "role": "Carpenter"},
//	})
package commhub
