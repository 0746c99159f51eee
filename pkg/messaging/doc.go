// Package messaging is the decision core of the communication hub.
//
// It turns an abstract Message into a delivery plan: for every recipient it
// selects channels, computes the delivery instant (honoring emergency priority,
// explicit schedules and quiet hours), scores dispatch priority, sets the retry
// budget and renders content per channel. It also renders templates and matches
// notification rules against system events.
//
// Everything here is synchronous and free of shared mutable state. Nothing is
// persisted and no provider is called; executing the plan belongs to the
// dispatch and sender packages.
//
// Basic usage:
//
//	planner := messaging.NewPlanner()
//	result := planner.Process(&msg, prefsByUserID)
//	for _, entry := range result.Plan {
//		// hand entry to a channel sender
//	}
//	for _, w := range result.Warnings {
//		log.Println(w)
//	}
//
// Rules:
//
//	matched := messaging.MatchRules(messaging.EventVolunteerAssigned, data, rules)
//
// Templates:
//
//	rendered, err := messaging.Render(tpl, map[string]any{"volunteerName": "Ann"})
//	if messaging.IsMissingVariablesError(err) {
//		// report every missing variable at once
//	}
package messaging
