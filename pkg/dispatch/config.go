package dispatch

import "time"

// Config holds the configuration for the delivery queue and worker
type Config struct {
	PollInterval      time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout       time.Duration `env:"DISPATCH_LOCK_TIMEOUT" envDefault:"2m"`
	RetryBackoff      time.Duration `env:"DISPATCH_RETRY_BACKOFF" envDefault:"30s"`
	MaxConcurrentJobs int           `env:"DISPATCH_MAX_CONCURRENT_JOBS" envDefault:"10"`

	// Per-channel provider throttling, tokens per RateInterval. Zero disables the limit.
	EmailRate    int           `env:"DISPATCH_EMAIL_RATE" envDefault:"50"`
	SMSRate      int           `env:"DISPATCH_SMS_RATE" envDefault:"10"`
	RateInterval time.Duration `env:"DISPATCH_RATE_INTERVAL" envDefault:"1s"`
}
