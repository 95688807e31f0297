package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is not set.
var DefaultPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/agendaclin/config.yaml",
}

// envMappings maps environment variable names (lower case) to config keys.
var envMappings = map[string]string{
	"app_env":          "app.env",
	"app_port":         "app.port",
	"log_level":        "app.log_level",
	"shutdown_timeout": "app.shutdown_timeout",
	"enforce_tls":      "app.enforce_tls",

	"store_driver":         "database.driver",
	"db_host":              "database.host",
	"db_port":              "database.port",
	"db_user":              "database.user",
	"db_password":          "database.password",
	"db_name":              "database.name",
	"db_ssl_mode":          "database.ssl_mode",
	"db_max_open_conns":    "database.max_open_conns",
	"db_max_idle_conns":    "database.max_idle_conns",
	"db_conn_max_lifetime": "database.conn_max_lifetime",
	"db_auto_migrate":      "database.auto_migrate",

	"vapid_public_key":     "push.vapid_public_key",
	"vapid_private_key":    "push.vapid_private_key",
	"vapid_subject":        "push.vapid_subject",
	"push_ttl":             "push.ttl",
	"push_urgency":         "push.urgency",
	"push_attempt_timeout": "push.attempt_timeout",
	"push_icon":            "push.icon",
	"push_badge":           "push.badge",
	"push_agenda_url":      "push.agenda_url",

	"auth_service_signing_key": "auth.service_signing_key",
	"auth_service_issuer":      "auth.service_issuer",
	"auth_service_audience":    "auth.service_audience",

	"otel_enabled":                "telemetry.enabled",
	"otel_exporter_otlp_endpoint": "telemetry.otlp_endpoint",
	"otel_traces_sampler_arg":     "telemetry.sample_ratio",

	"pubsub_project_id":   "pubsub.project_id",
	"pubsub_subscription": "pubsub.subscription",

	"feature_flags_cache_ttl": "feature_flags.cache_ttl",

	"rate_limit_send_per_minute":      "rate_limit.send_per_minute",
	"rate_limit_subscribe_per_minute": "rate_limit.subscribe_per_minute",
}

// Load reads .env (if present), then layers defaults, the config file and
// environment variables, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey translates an environment variable name into a config key.
// Unknown variables are ignored.
func envKey(name string) string {
	return envMappings[strings.ToLower(name)]
}

func findFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
