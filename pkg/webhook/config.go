package webhook

import "time"

// Config configures the relay. An empty URL disables it.
type Config struct {
	URL      string        `env:"RELAY_WEBHOOK_URL"`
	Secret   string        `env:"RELAY_WEBHOOK_SECRET"`
	Timeout  time.Duration `env:"RELAY_WEBHOOK_TIMEOUT" envDefault:"10s"`
	Channels []string      `env:"RELAY_WEBHOOK_CHANNELS" envSeparator:"," envDefault:"sms,push_notification,phone_call"`

	// The breaker opens after FailureThreshold consecutive failures and
	// tries again after RecoveryTimeout.
	FailureThreshold int           `env:"RELAY_WEBHOOK_FAILURE_THRESHOLD" envDefault:"5"`
	SuccessThreshold int           `env:"RELAY_WEBHOOK_SUCCESS_THRESHOLD" envDefault:"2"`
	RecoveryTimeout  time.Duration `env:"RELAY_WEBHOOK_RECOVERY_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a relay URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }
