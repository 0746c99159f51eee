// Command commhub runs the communication hub: the HTTP API, the delivery
// worker and its channel senders.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/commhub/pkg/api"
	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/config"
	"github.com/dmitrymomot/commhub/pkg/dispatch"
	"github.com/dmitrymomot/commhub/pkg/email"
	"github.com/dmitrymomot/commhub/pkg/httpserver"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("commhub stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg.Log, logger.WithContextExtractors(api.RequestIDExtractor()))
	if err != nil {
		return err
	}
	logger.SetAsDefault(log)

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	if cfg.App.SeedFile != "" {
		if err := seed(ctx, infra.writer, cfg.App.SeedFile, log); err != nil {
			return err
		}
	}

	flags, err := commhub.NewFeatureProvider(cfg.Hub.Features)
	if err != nil {
		return err
	}
	enqueuer, err := dispatch.NewEnqueuer(infra.queue)
	if err != nil {
		return err
	}

	hubOpts := []commhub.Option{
		commhub.WithLogger(log.With(logger.Component("hub"))),
		commhub.WithFeatures(flags),
	}
	if infra.prefs != nil {
		hubOpts = append(hubOpts, commhub.WithPreferences(infra.prefs))
	}
	hub, err := commhub.New(cfg.Hub, infra.store, enqueuer, hubOpts...)
	if err != nil {
		return err
	}

	inbox := newInbox(hub, cfg.App, log)

	mailer, err := newMailer(cfg.Email, log)
	if err != nil {
		return err
	}

	relay, err := newRelay(cfg.Relay, infra.store, log)
	if err != nil {
		return err
	}

	worker, err := newWorker(cfg.Dispatch, infra, hub, inbox,
		email.NewChannelSender(mailer, infra.store, email.WithChannelLogger(log.With(logger.Component("email")))),
		relay, cfg.Relay.Channels,
		log,
	)
	if err != nil {
		return err
	}

	routerOpts := []api.Option{
		api.WithLogger(log.With(logger.Component("api"))),
		api.WithConfig(cfg.API),
	}
	if limiter, err := newEventLimiter(cfg.API, infra.limits); err != nil {
		return err
	} else if limiter != nil {
		routerOpts = append(routerOpts, api.WithEventLimiter(limiter))
	}
	for _, check := range infra.readiness {
		routerOpts = append(routerOpts, api.WithReadinessCheck(check))
	}
	router := api.NewRouter(hub, inbox, routerOpts...)

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))

	log.LogAttrs(ctx, slog.LevelInfo, "commhub starting",
		slog.Bool("postgres", infra.pool != nil),
		slog.Bool("redis", infra.redis != nil),
		slog.Bool("postmark", cfg.Email.UsePostmark()),
		slog.Bool("relay", relay != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, router) })
	return g.Wait()
}

func seed(ctx context.Context, w store.SeedWriter, path string, log *slog.Logger) error {
	s, err := store.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := s.Apply(ctx, w); err != nil {
		return err
	}
	log.LogAttrs(ctx, slog.LevelInfo, "seed applied",
		slog.String("path", path),
		slog.Int("templates", len(s.Templates)),
		slog.Int("rules", len(s.Rules)),
		slog.Int("contacts", len(s.Contacts)),
		slog.Int("groups", len(s.Groups)),
	)
	return nil
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	for _, load := range []func() error{
		func() error { return config.Load(&cfg.App) },
		func() error { return config.Load(&cfg.Log) },
		func() error { return config.Load(&cfg.Hub) },
		func() error { return config.Load(&cfg.Dispatch) },
		func() error { return config.Load(&cfg.Email) },
		func() error { return config.Load(&cfg.Postgres) },
		func() error { return config.Load(&cfg.Redis) },
		func() error { return config.Load(&cfg.Relay) },
		func() error { return config.Load(&cfg.API) },
		func() error { return config.Load(&cfg.HTTP) },
	} {
		if err := load(); err != nil {
			return appConfig{}, err
		}
	}
	return cfg, nil
}
