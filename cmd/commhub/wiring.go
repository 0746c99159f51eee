package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/commhub/pkg/api"
	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/email"
	"github.com/dmitrymomot/commhub/pkg/httpserver"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/notifications"
	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
	"github.com/dmitrymomot/commhub/pkg/store"
	"github.com/dmitrymomot/commhub/pkg/webhook"
)

// runtimeConfig holds settings that only the binary reads.
type runtimeConfig struct {
	SeedFile string        `env:"COMMHUB_SEED_FILE"`
	InboxTTL time.Duration `env:"COMMHUB_INBOX_TTL" envDefault:"720h"`
}

type appConfig struct {
	App      runtimeConfig
	Log      logger.Config
	Hub      commhub.Config
	Dispatch dispatch.Config
	Email    email.Config
	Postgres store.PostgresConfig
	Redis    store.RedisConfig
	Relay    webhook.Config
	API      api.Config
	HTTP     httpserver.Config
}

// infra is the storage picked from configuration: Postgres when PG_CONN_URL is
// set, process memory otherwise, with Redis in front of preferences and
// rate limits when REDIS_URL is set.
type infra struct {
	store  commhub.Store
	writer store.SeedWriter
	queue  dispatch.Repository
	prefs  commhub.PreferenceRepository
	limits ratelimiter.Store

	pool  *pgxpool.Pool
	redis *redis.Client

	readiness []func(context.Context) error
	closers   []func()
}

func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func openInfra(ctx context.Context, cfg appConfig, log *slog.Logger) (_ *infra, err error) {
	in := &infra{}
	defer func() {
		if err != nil {
			in.close()
		}
	}()

	if cfg.Postgres.ConnectionString != "" {
		pool, err := store.ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.pool = pool
		in.closers = append(in.closers, pool.Close)

		if err := store.Migrate(ctx, pool, cfg.Postgres, log.With(logger.Component("migrations"))); err != nil {
			return nil, err
		}

		pg := store.NewPostgres(pool)
		in.store, in.writer = pg, pg
		in.queue = store.NewPostgresQueue(pool, store.WithQueueBackoff(cfg.Dispatch.RetryBackoff))
		in.readiness = append(in.readiness, store.PostgresHealthcheck(pool))
	} else {
		mem := store.NewMemoryStore()
		in.store, in.writer = mem, mem
		q := dispatch.NewMemoryQueue(dispatch.WithRetryBackoff(cfg.Dispatch.RetryBackoff))
		in.queue = q
		in.closers = append(in.closers, func() { _ = q.Close() })
	}

	if cfg.Redis.ConnectionURL != "" {
		client, err := store.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.redis = client
		in.closers = append(in.closers, func() { _ = client.Close() })

		in.prefs = store.NewPreferenceCache(in.store, client,
			store.WithCacheTTL(cfg.Redis.PreferenceTTL),
			store.WithCacheLogger(log.With(logger.Component("preference_cache"))),
		)
		in.limits = ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("commhub:ratelimit:"))
		in.readiness = append(in.readiness, store.RedisHealthcheck(client))
	} else {
		limits := ratelimiter.NewMemoryStore()
		in.limits = limits
		in.closers = append(in.closers, limits.Close)
	}

	return in, nil
}

// newInbox creates the in-app channel. Opening an item records a read receipt on the message.
func newInbox(hub *commhub.Hub, cfg runtimeConfig, log *slog.Logger) *notifications.Inbox {
	opts := []notifications.InboxOption{
		notifications.WithInboxLogger(log.With(logger.Component("inbox"))),
		notifications.WithReadHandler(func(ctx context.Context, messageID, userID string, _ time.Time) error {
			return hub.MarkRead(ctx, messageID, userID, messaging.ChannelInApp)
		}),
	}
	if cfg.InboxTTL > 0 {
		opts = append(opts, notifications.WithTTL(cfg.InboxTTL))
	}
	return notifications.NewInbox(notifications.NewMemoryStorage(), opts...)
}

// newMailer returns the Postmark client when both tokens are configured and
// the file-writing dev sender otherwise.
func newMailer(cfg email.Config, log *slog.Logger) (email.EmailSender, error) {
	if cfg.UsePostmark() {
		return email.NewPostmarkClient(cfg)
	}
	log.LogAttrs(context.Background(), slog.LevelWarn, "postmark is not configured, emails are written to disk",
		slog.String("dir", cfg.DevDir),
	)
	return email.NewDevSender(cfg.DevDir), nil
}

// newWorker registers the in-app and email senders, and the relay for its
// channels when one is configured. Jobs for channels without a sender fail
// permanently with dispatch.ErrNoSender.
func newWorker(
	cfg dispatch.Config,
	in *infra,
	hub *commhub.Hub,
	inbox *notifications.Inbox,
	mail *email.ChannelSender,
	relay *webhook.Sender,
	relayChannels []string,
	log *slog.Logger,
) (*dispatch.Worker, error) {
	opts := []dispatch.WorkerOption{
		dispatch.WithSender(messaging.ChannelInApp, inbox),
		dispatch.WithSender(messaging.ChannelEmail, mail),
		dispatch.WithResultHandler(hub.HandleOutcome),
		dispatch.WithPullInterval(cfg.PollInterval),
		dispatch.WithLockTimeout(cfg.LockTimeout),
		dispatch.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		dispatch.WithWorkerLogger(log.With(logger.Component("dispatch"))),
	}

	if relay != nil {
		for _, name := range relayChannels {
			ch := messaging.Channel(name)
			if !ch.Valid() || ch == messaging.ChannelInApp || ch == messaging.ChannelEmail {
				return nil, fmt.Errorf("%w: channel %q cannot be relayed", webhook.ErrInvalidConfiguration, name)
			}
			opts = append(opts, dispatch.WithSender(ch, relay))
		}
	}

	for ch, rate := range map[messaging.Channel]int{
		messaging.ChannelEmail: cfg.EmailRate,
		messaging.ChannelSMS:   cfg.SMSRate,
	} {
		if rate <= 0 || cfg.RateInterval <= 0 {
			continue
		}
		bucket, err := ratelimiter.NewBucket(in.limits, ratelimiter.PerInterval(rate, cfg.RateInterval))
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithRateLimit(ch, bucket))
	}

	return dispatch.NewWorker(in.queue, opts...)
}

// newRelay returns nil when no relay URL is configured.
func newRelay(cfg webhook.Config, contacts webhook.ContactLookup, log *slog.Logger) (*webhook.Sender, error) {
	if !cfg.Enabled() {
		log.LogAttrs(context.Background(), slog.LevelWarn, "relay is not configured, sms, push and phone jobs will fail")
		return nil, nil
	}
	return webhook.NewSender(cfg, contacts, webhook.WithLogger(log.With(logger.Component("relay"))))
}

// newEventLimiter limits inbound events per client. It returns nil when disabled.
func newEventLimiter(cfg api.Config, limits ratelimiter.Store) (ratelimiter.RateLimiter, error) {
	if cfg.EventsPerInterval <= 0 || cfg.EventsInterval <= 0 {
		return nil, nil
	}
	return ratelimiter.NewBucket(limits, ratelimiter.PerInterval(cfg.EventsPerInterval, cfg.EventsInterval))
}
