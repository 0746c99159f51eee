// Package api exposes the communication hub over HTTP with a chi router.
//
// Endpoints (JSON in and out):
//
//	POST /events/{eventType}             trigger rules for a domain event
//	POST /messages                       send a message
//	GET  /messages/{id}                  read a stored message
//	POST /messages/{id}/cancel           cancel a draft or scheduled message
//	POST /messages/{id}/read             record a read receipt
//	POST /messages/{id}/responses        record a recipient response
//	POST /messages/{id}/deliveries       delivery callback from a provider
//	GET  /messages/{id}/report           delivery report
//	POST /groups/{id}/messages           message a communication group
//	POST /emergency/alerts               emergency alert
//	POST /elder-coordination             start elder coordination
//	GET  /elder-coordination/{id}        read a coordination thread
//	GET  /users/{id}/preferences         communication preferences
//	PUT  /users/{id}/preferences         replace preferences
//	GET  /users/{id}/notifications       in-app inbox
//	POST /users/{id}/notifications/read  mark inbox items read
//	GET  /healthz, /readyz               health checks
//
// Domain errors map to 400 (invalid input, no recipients), 403 (feature
// disabled), 404 (unknown message, group or recipient) and 409 (status
// conflicts, inactive templates). Error bodies carry a stable code and the
// chi request id.
package api
