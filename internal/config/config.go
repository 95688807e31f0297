// Package config loads service configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	App          AppConfig          `koanf:"app"`
	Database     DatabaseConfig     `koanf:"database"`
	Push         PushConfig         `koanf:"push"`
	Auth         AuthConfig         `koanf:"auth"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	PubSub       PubSubConfig       `koanf:"pubsub"`
	FeatureFlags FeatureFlagsConfig `koanf:"feature_flags"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
}

// AppConfig holds process level settings.
type AppConfig struct {
	Env             string        `koanf:"env" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// EnforceTLS rejects plain http requests that did not pass through a TLS proxy.
	EnforceTLS bool `koanf:"enforce_tls"`
}

// DatabaseConfig holds subscription store settings.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=postgres memory"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// PushConfig holds the application key pair and delivery settings.
type PushConfig struct {
	VAPIDPublicKey  string        `koanf:"vapid_public_key"`
	VAPIDPrivateKey string        `koanf:"vapid_private_key"`
	VAPIDSubject    string        `koanf:"vapid_subject"`
	TTL             time.Duration `koanf:"ttl" validate:"gte=0"`
	Urgency         string        `koanf:"urgency" validate:"oneof=very-low low normal high"`
	AttemptTimeout  time.Duration `koanf:"attempt_timeout" validate:"gt=0"`
	Icon            string        `koanf:"icon"`
	Badge           string        `koanf:"badge"`
	AgendaURL       string        `koanf:"agenda_url"`
}

// AuthConfig holds settings for internal service tokens.
type AuthConfig struct {
	// ServiceSigningKey enables bearer token checks on /push/send and admin
	// routes when set.
	ServiceSigningKey string `koanf:"service_signing_key"`
	ServiceIssuer     string `koanf:"service_issuer"`
	ServiceAudience   string `koanf:"service_audience"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRatio  float64 `koanf:"sample_ratio" validate:"gte=0,lte=1"`
}

// PubSubConfig holds settings for the event worker.
type PubSubConfig struct {
	ProjectID    string `koanf:"project_id"`
	Subscription string `koanf:"subscription"`
}

// FeatureFlagsConfig holds feature flag cache settings.
type FeatureFlagsConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gt=0"`
}

// RateLimitConfig holds per-minute request budgets for the push endpoints.
type RateLimitConfig struct {
	// SendPerMinute is counted per calling service.
	SendPerMinute int `koanf:"send_per_minute" validate:"min=1"`
	// SubscribePerMinute is counted per client IP and shared by subscribe
	// and unsubscribe.
	SubscribePerMinute int `koanf:"subscribe_per_minute" validate:"min=1"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Env:             "development",
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          StoreDriverPostgres,
			Host:            "localhost",
			Port:            5432,
			User:            "agendaclin",
			Password:        "localdev",
			Name:            "agendaclin",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Push: PushConfig{
			TTL:            24 * time.Hour,
			Urgency:        "normal",
			AttemptTimeout: 15 * time.Second,
			Icon:           "/icons/icon-192.png",
			Badge:          "/icons/badge-72.png",
			AgendaURL:      "/agenda",
		},
		Auth: AuthConfig{
			ServiceIssuer:   "agendaclin",
			ServiceAudience: "agendaclin-push",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		PubSub: PubSubConfig{
			Subscription: "appointment-events",
		},
		FeatureFlags: FeatureFlagsConfig{
			CacheTTL: time.Minute,
		},
		RateLimit: RateLimitConfig{
			SendPerMinute:      30,
			SubscribePerMinute: 100,
		},
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// PushKeysConfigured reports whether the application key pair and subject are set.
func (c *Config) PushKeysConfigured() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != "" && c.Push.VAPIDSubject != ""
}

// Warnings lists settings that do not prevent startup but disable features.
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.PushKeysConfigured() {
		warnings = append(warnings, "VAPID_PUBLIC_KEY, VAPID_PRIVATE_KEY or VAPID_SUBJECT not set: push sending is disabled")
	}
	if c.Auth.ServiceSigningKey == "" {
		warnings = append(warnings, "AUTH_SERVICE_SIGNING_KEY not set: /push/send and admin routes are unauthenticated")
	}
	if c.Database.Driver == StoreDriverMemory {
		warnings = append(warnings, "STORE_DRIVER=memory: subscriptions are lost on restart")
	}
	return warnings
}
