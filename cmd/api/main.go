// Package main provides the entrypoint for the agendaclin push API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/api"
	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/auth"
	"github.com/agendaclin/agendaclin/internal/bootstrap"
	"github.com/agendaclin/agendaclin/internal/config"
	"github.com/agendaclin/agendaclin/internal/resilience"
	"github.com/agendaclin/agendaclin/internal/subscription"
	"github.com/agendaclin/agendaclin/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "agendaclin-push-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := bootstrap.NewLogger(cfg.App, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting agendaclin push API")
	bootstrap.ReportWarnings(cfg, log)

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	stores, err := bootstrap.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	flagService := bootstrap.NewFlagService(cfg.FeatureFlags, stores.Flags, log)

	pushServices := resilience.NewRegistry()
	dispatcher, err := bootstrap.NewDispatcher(cfg.Push, stores.Subscriptions, flagService, pushServices, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create push dispatcher")
	}

	var tokens *auth.TokenService
	if cfg.Auth.ServiceSigningKey != "" {
		tokens = auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.Auth.ServiceSigningKey,
			Issuer:     cfg.Auth.ServiceIssuer,
			Audience:   cfg.Auth.ServiceAudience,
		})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Subscriptions: subscription.NewService(subscription.ServiceConfig{
			Repository: stores.Subscriptions,
			Logger:     log,
		}),
		Dispatcher:         dispatcher,
		FeatureFlagService: flagService,
		TokenService:       tokens,
		VAPIDPublicKey:     cfg.Push.VAPIDPublicKey,
		PushKeysConfigured: cfg.PushKeysConfigured(),
		PushServices:       pushServices,
		SendLimit:          middleware.PerMinute(cfg.RateLimit.SendPerMinute),
		SubscribeLimit:     middleware.PerMinute(cfg.RateLimit.SubscribePerMinute),
		EnforceTLS:         cfg.App.EnforceTLS,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // /push/send waits for the whole fan-out
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
