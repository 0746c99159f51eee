package ratelimiter

import "time"

// Result contains the result of a rate limit check.
type Result struct {
	Limit     int       // Bucket capacity
	Remaining int       // Tokens left; negative when the request was denied
	ResetAt   time.Time // When the next refill happens
}

// Allowed returns whether the request is allowed based on remaining tokens.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long to wait before trying again, or 0 if allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(0, time.Until(r.ResetAt))
}

// Config defines the token bucket configuration.
type Config struct {
	Capacity       int           // Burst limit
	RefillRate     int           // Tokens added per RefillInterval
	RefillInterval time.Duration // How often tokens are added
}

// PerInterval is a bucket that allows n requests per interval with a burst of n.
func PerInterval(n int, interval time.Duration) Config {
	return Config{Capacity: n, RefillRate: n, RefillInterval: interval}
}
