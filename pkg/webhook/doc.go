// Package webhook delivers sms, push and phone jobs through an HTTP relay.
//
// The relay is an external service that owns the provider integrations. For
// every attempt the Sender posts a JSON Delivery to the configured URL. When a
// secret is set the request carries
//
//	X-Commhub-Timestamp: unix seconds
//	X-Commhub-Signature: hex HMAC-SHA256(secret, timestamp + "." + body)
//	X-Commhub-Delivery:  job id, stable across retries
//
// and the relay can check it with Verify. A CircuitBreaker stops calls after
// consecutive failures so the worker requeues jobs instead of waiting on
// timeouts.
package webhook
