package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/httpserver"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/notifications"
	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
)

// Hub is the part of *commhub.Hub served over HTTP.
type Hub interface {
	TriggerNotification(ctx context.Context, eventType messaging.EventType, data messaging.EventData) (commhub.TriggerResult, error)
	Send(ctx context.Context, msg messaging.Message) (commhub.SendResult, error)
	SendFromTemplate(ctx context.Context, templateID string, req commhub.TemplateMessage) (commhub.SendResult, error)
	ApproveMessage(ctx context.Context, messageID, approverID string) (commhub.SendResult, error)
	Message(ctx context.Context, id string) (messaging.Message, error)
	Cancel(ctx context.Context, messageID string) (int, error)
	MarkRead(ctx context.Context, messageID, userID string, ch messaging.Channel) error
	Respond(ctx context.Context, messageID string, r messaging.Response) (messaging.Message, error)
	RecordDelivery(ctx context.Context, u commhub.DeliveryUpdate) (messaging.Message, error)
	DeliveryReport(ctx context.Context, messageID string) (commhub.DeliveryReport, error)
	SendGroupMessage(ctx context.Context, groupID string, gm commhub.GroupMessage) (commhub.SendResult, error)
	SendEmergencyAlert(ctx context.Context, alert commhub.EmergencyAlert) (commhub.SendResult, error)
	StartElderCoordination(ctx context.Context, req commhub.CoordinationRequest) (commhub.ElderCoordination, error)
	Coordination(ctx context.Context, id string) (commhub.ElderCoordination, error)
	AddElderDecision(ctx context.Context, coordinationID string, req commhub.DecisionRequest) (commhub.ElderCoordination, error)
	Preferences(ctx context.Context, userID string) (messaging.Preferences, error)
	UpdatePreferences(ctx context.Context, prefs messaging.Preferences) (messaging.Preferences, error)
}

// Inbox is the in-app notification store read by users.
type Inbox interface {
	List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error)
	MarkRead(ctx context.Context, userID string, notifIDs ...string) error
	MarkAllRead(ctx context.Context, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Option configures the router.
type Option func(*handler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithConfig replaces the default settings.
func WithConfig(cfg Config) Option {
	return func(h *handler) { h.cfg = cfg }
}

// WithEventLimiter limits POST /events per client address.
func WithEventLimiter(l ratelimiter.RateLimiter) Option {
	return func(h *handler) { h.eventLimiter = l }
}

// WithReadinessCheck adds a dependency checked by GET /readyz.
func WithReadinessCheck(check func(context.Context) error) Option {
	return func(h *handler) {
		if check != nil {
			h.readiness = append(h.readiness, check)
		}
	}
}

type handler struct {
	hub          Hub
	inbox        Inbox
	logger       *slog.Logger
	cfg          Config
	eventLimiter ratelimiter.RateLimiter
	readiness    []func(context.Context) error
}

// NewRouter mounts the hub and inbox endpoints on a chi router.
func NewRouter(hub Hub, inbox Inbox, opts ...Option) http.Handler {
	h := &handler{
		hub:    hub,
		inbox:  inbox,
		logger: slog.Default(),
		cfg:    defaultConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(h.cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", httpserver.HealthCheckHandler(h.logger))
	r.Get("/readyz", httpserver.HealthCheckHandler(h.logger, h.readiness...))

	r.Group(func(r chi.Router) {
		if h.eventLimiter != nil {
			r.Use(ratelimiter.Middleware(h.eventLimiter, ratelimiter.ClientIP))
		}
		r.Post("/events/{eventType}", h.triggerEvent)
	})

	r.Route("/messages", func(r chi.Router) {
		r.Post("/", h.sendMessage)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getMessage)
			r.Post("/cancel", h.cancelMessage)
			r.Post("/approve", h.approveMessage)
			r.Post("/read", h.markMessageRead)
			r.Post("/responses", h.respond)
			r.Post("/deliveries", h.recordDelivery)
			r.Get("/report", h.deliveryReport)
		})
	})

	r.Post("/templates/{id}/messages", h.sendFromTemplate)
	r.Post("/groups/{id}/messages", h.sendGroupMessage)
	r.Post("/emergency/alerts", h.sendEmergencyAlert)

	r.Route("/elder-coordination", func(r chi.Router) {
		r.Post("/", h.startCoordination)
		r.Get("/{id}", h.getCoordination)
		r.Post("/{id}/decisions", h.addDecision)
	})

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.updatePreferences)
		r.Get("/notifications", h.listNotifications)
		r.Post("/notifications/read", h.readNotifications)
	})

	return r
}
