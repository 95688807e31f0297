// Package bootstrap builds the components shared by the API server and the
// event worker from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/config"
	"github.com/agendaclin/agendaclin/internal/database"
	"github.com/agendaclin/agendaclin/internal/featureflags"
	"github.com/agendaclin/agendaclin/internal/notify"
	"github.com/agendaclin/agendaclin/internal/resilience"
	"github.com/agendaclin/agendaclin/internal/subscription"
)

// NewLogger returns the JSON process logger writing to stdout.
func NewLogger(cfg config.AppConfig, service, version string) zerolog.Logger {
	return newLogger(os.Stdout, cfg, service, version)
}

func newLogger(w io.Writer, cfg config.AppConfig, service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("env", cfg.Env).
		Logger()
}

// Stores holds the repositories for the configured driver.
type Stores struct {
	Subscriptions subscription.Repository
	Flags         featureflags.Repository

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// OpenStores connects to PostgreSQL (running migrations when enabled) or
// returns in-memory repositories for the memory driver.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*Stores, error) {
	if cfg.Driver == config.StoreDriverMemory {
		return &Stores{
			Subscriptions: subscription.NewInMemoryRepository(),
			Flags:         featureflags.NewInMemoryRepository(),
		}, nil
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("database connected")

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	return &Stores{
		Subscriptions: subscription.NewPostgresRepository(pool),
		Flags:         featureflags.NewPostgresRepository(pool),
		pool:          pool,
	}, nil
}

// NewFlagService wraps repo in a cached flag service.
func NewFlagService(cfg config.FeatureFlagsConfig, repo featureflags.Repository, log zerolog.Logger) *featureflags.Service {
	return featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     log,
		CacheTTL:   cfg.CacheTTL,
	})
}

// VAPID returns the signing identity from cfg.
func VAPID(cfg config.PushConfig) notify.VAPIDConfig {
	return notify.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}
}

// NewDispatcher wires the web push sender and the renderer into a
// dispatcher. Each push service host gets a passive breaker: outcomes are
// reported through registry but calls are never short-circuited, so every
// endpoint gets its one attempt. Delivery is never retried.
func NewDispatcher(
	cfg config.PushConfig,
	subs subscription.Repository,
	flags notify.SendingSwitch,
	registry *resilience.Registry,
	log zerolog.Logger,
) (*notify.Dispatcher, error) {
	vapid := VAPID(cfg)

	breaker := resilience.PassiveBreakerConfig("")
	pool := resilience.NewHostPool(resilience.ClientConfig{
		Timeout:    cfg.AttemptTimeout,
		MaxRetries: 0,
		Breaker:    &breaker,
		Registry:   registry,
		Logger:     log,
	})

	sender := notify.NewWebPushSender(notify.WebPushSenderConfig{
		VAPID:      vapid,
		TTL:        cfg.TTL,
		Urgency:    cfg.Urgency,
		HTTPClient: pool,
	})

	renderer := notify.NewRenderer(notify.RendererConfig{
		Icon:      cfg.Icon,
		Badge:     cfg.Badge,
		AgendaURL: cfg.AgendaURL,
	})

	return notify.NewDispatcher(notify.DispatcherConfig{
		Repository:     subs,
		Sender:         sender,
		Renderer:       renderer,
		VAPID:          vapid,
		Switch:         flags,
		Logger:         log,
		AttemptTimeout: cfg.AttemptTimeout,
	})
}

// ReportWarnings logs every configuration warning.
func ReportWarnings(cfg *config.Config, log zerolog.Logger) {
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}
}
