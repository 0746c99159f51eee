// Package ratelimiter provides token bucket rate limiting.
//
// The dispatch worker uses it to throttle outbound providers per channel (an
// SMS gateway that accepts ten requests per second, for example), and the HTTP
// API uses Middleware to protect the inbound event endpoint.
//
// Two stores are available: MemoryStore for a single process and RedisStore
// when several workers must share one budget. Both refill tokens in whole
// intervals and never charge denied requests.
//
// # Usage
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	sms, err := ratelimiter.NewBucket(store, ratelimiter.PerInterval(10, time.Second))
//	if err != nil {
//		return err
//	}
//
//	res, err := sms.Allow(ctx, "sms")
//	if err != nil {
//		return err
//	}
//	if !res.Allowed() {
//		// try again at res.ResetAt
//	}
//
// HTTP middleware:
//
//	r.Use(ratelimiter.Middleware(bucket, ratelimiter.ClientIP))
package ratelimiter
