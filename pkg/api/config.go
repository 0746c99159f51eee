package api

import "time"

// Config holds HTTP surface settings.
type Config struct {
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes   int64         `env:"API_MAX_BODY_BYTES" envDefault:"1048576"`

	// Inbound events are limited per client address.
	EventsPerInterval int           `env:"API_EVENTS_PER_INTERVAL" envDefault:"120"`
	EventsInterval    time.Duration `env:"API_EVENTS_INTERVAL" envDefault:"1m"`

	CORSAllowedOrigins []string `env:"API_CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func defaultConfig() Config {
	return Config{
		RequestTimeout:     30 * time.Second,
		MaxBodyBytes:       1 << 20,
		EventsPerInterval:  120,
		EventsInterval:     time.Minute,
		CORSAllowedOrigins: []string{"*"},
	}
}
