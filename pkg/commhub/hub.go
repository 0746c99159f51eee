package commhub

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// Hub is the communication service: it turns events and ad hoc requests into
// planned, persisted and dispatched messages and tracks their delivery.
type Hub struct {
	cfg        Config
	store      Store
	prefs      PreferenceRepository
	dispatcher Dispatcher
	features   feature.Provider
	planner    *messaging.Planner
	renderer   *messaging.Renderer
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the time source used for planning and timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithFeatures sets the flag provider. Without one every channel is enabled
// and gated operations are refused.
func WithFeatures(p feature.Provider) Option {
	return func(h *Hub) {
		h.features = p
	}
}

// WithPreferences reads and writes preferences through repo instead of the store,
// e.g. a cache in front of it.
func WithPreferences(repo PreferenceRepository) Option {
	return func(h *Hub) {
		if repo != nil {
			h.prefs = repo
		}
	}
}

// New creates a hub.
func New(cfg Config, store Store, dispatcher Dispatcher, opts ...Option) (*Hub, error) {
	if store == nil || dispatcher == nil {
		return nil, fmt.Errorf("%w: store and dispatcher are required", ErrInvalidConfig)
	}
	if cfg.MaxRecipientsPerMessage <= 0 || cfg.MaxMessageLength <= 0 {
		return nil, fmt.Errorf("%w: message limits must be positive", ErrInvalidConfig)
	}

	lang := language.English
	if cfg.Language != "" {
		tag, err := language.Parse(cfg.Language)
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		lang = tag
	}

	h := &Hub{
		cfg:        cfg,
		store:      store,
		prefs:      store,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.logger = h.logger.With(logger.Component("commhub"))
	h.renderer = messaging.NewRenderer(
		messaging.WithLanguage(lang),
		messaging.WithDateLayout(cfg.DateLayout),
	)
	plannerOpts := []messaging.PlannerOption{messaging.WithClock(h.now)}
	if cfg.Brand != "" {
		plannerOpts = append(plannerOpts, messaging.WithBrand(cfg.Brand))
	}
	h.planner = messaging.NewPlanner(plannerOpts...)

	return h, nil
}
