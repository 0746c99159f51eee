package dispatch

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pullInterval      time.Duration
	lockTimeout       time.Duration
	maxConcurrentJobs int
	senders           map[messaging.Channel]Sender
	limiters          map[messaging.Channel]ratelimiter.RateLimiter
	onResult          ResultHandler
	logger            *slog.Logger
}

// WithSender registers the sender for a channel
func WithSender(ch messaging.Channel, s Sender) WorkerOption {
	return func(o *workerOptions) {
		if s != nil {
			o.senders[ch] = s
		}
	}
}

// WithRateLimit throttles a channel. Throttled jobs are deferred, not failed.
func WithRateLimit(ch messaging.Channel, l ratelimiter.RateLimiter) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.limiters[ch] = l
		}
	}
}

// WithResultHandler sets the callback invoked after each delivery attempt
func WithResultHandler(h ResultHandler) WorkerOption {
	return func(o *workerOptions) {
		o.onResult = h
	}
}

// WithPullInterval sets how often the worker checks for ready jobs
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed job stays locked
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxConcurrentJobs sets the maximum number of concurrent deliveries
func WithMaxConcurrentJobs(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentJobs = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
