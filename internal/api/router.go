// Package api provides the HTTP API for the agendaclin push subsystem.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/api/handler"
	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/auth"
	"github.com/agendaclin/agendaclin/internal/featureflags"
	"github.com/agendaclin/agendaclin/internal/resilience"
	"github.com/agendaclin/agendaclin/internal/subscription"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Subscriptions      *subscription.Service
	Dispatcher         handler.Dispatcher
	FeatureFlagService *featureflags.Service

	// TokenService guards /push/send and the admin routes. When nil,
	// /push/send is open and the admin routes are not mounted.
	TokenService *auth.TokenService

	// VAPIDPublicKey is served by GET /push/config.
	VAPIDPublicKey     string
	PushKeysConfigured bool
	PushServices       *resilience.Registry

	// SendLimit and SubscribeLimit override the middleware defaults.
	SendLimit      middleware.Limit
	SubscribeLimit middleware.Limit

	EnforceTLS bool
}

// probePaths are hit by the platform every few seconds.
var probePaths = []string{"/v1/ops/health", "/v1/ops/ready"}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agendaclin-push"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: serviceName,
		SkipPaths:   probePaths,
	}))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger, probePaths...)) // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))              // Panic recovery
	r.Use(chimiddleware.RealIP)                         // Real IP extraction
	r.Use(middleware.SecurityHeaders)                   // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.EnforceTLS))        // TLS enforcement behind the load balancer
	r.Use(middleware.ContentTypeJSON)                   // JSON content type
	r.Use(middleware.RequireJSON)                       // Reject non-JSON bodies

	pushHandlerCfg := handler.PushHandlerConfig{
		Subscriptions: cfg.Subscriptions,
		Dispatcher:    cfg.Dispatcher,
		PublicKey:     cfg.VAPIDPublicKey,
		Logger:        cfg.Logger,
	}
	if cfg.FeatureFlagService != nil {
		pushHandlerCfg.Nudge = cfg.FeatureFlagService
	}
	pushHandler := handler.NewPushHandler(pushHandlerCfg)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:            cfg.Version,
		BuildTime:          cfg.BuildTime,
		Store:              cfg.Subscriptions,
		PushServices:       cfg.PushServices,
		PushKeysConfigured: cfg.PushKeysConfigured,
	})

	sendLimit, subscribeLimit := cfg.SendLimit, cfg.SubscribeLimit
	if sendLimit.Requests <= 0 {
		sendLimit = middleware.SendLimit
	}
	if subscribeLimit.Requests <= 0 {
		subscribeLimit = middleware.SubscribeLimit
	}
	// Each route group counts against its own limiter.
	// Push contract consumed by the web app and internal services
	r.Route("/push", func(r chi.Router) {
		r.Get("/config", pushHandler.Config)
		r.With(middleware.RateLimit(subscribeLimit, middleware.KeyByIP)).Post("/subscribe", pushHandler.Subscribe)
		r.With(middleware.RateLimit(subscribeLimit, middleware.KeyByIP)).Post("/unsubscribe", pushHandler.Unsubscribe)
		r.With(
			middleware.ServiceAuth(cfg.TokenService, auth.ScopePushSend),
			middleware.RateLimit(sendLimit, middleware.KeyByService),
		).Post("/send", pushHandler.Send)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		if cfg.TokenService != nil && cfg.FeatureFlagService != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.ServiceAuth(cfg.TokenService, auth.ScopeFlagsAdmin))
				r.Use(middleware.RateLimit(subscribeLimit, middleware.KeyByService))

				r.Route("/feature-flags", func(r chi.Router) {
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				})
			})
		}
	})

	return r
}
