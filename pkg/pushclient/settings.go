package pushclient

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SettingsProvider exposes the operator-controlled nudge flag.
type SettingsProvider interface {
	NudgeEnabled(ctx context.Context) bool

	// Watch calls fn whenever the flag changes. The returned func stops watching.
	Watch(fn func(enabled bool)) (stop func())
}

// StaticSettings is a fixed flag value.
type StaticSettings struct {
	Enabled bool
}

// NudgeEnabled returns the fixed value.
func (s StaticSettings) NudgeEnabled(context.Context) bool { return s.Enabled }

// Watch never calls fn; the value cannot change.
func (s StaticSettings) Watch(func(bool)) func() { return func() {} }

// ConfigSource fetches the push configuration. *StoreClient implements it.
type ConfigSource interface {
	Config(ctx context.Context) (*RemoteConfig, error)
}

// ConfigPollerConfig holds configuration for a ConfigPoller.
type ConfigPollerConfig struct {
	Source ConfigSource

	// Interval between polls. Default: 5 minutes
	Interval time.Duration

	// Initial is the flag value reported before the first successful poll.
	Initial bool

	Logger zerolog.Logger
}

// ConfigPoller keeps the nudge flag and public key in step with GET /push/config.
type ConfigPoller struct {
	source   ConfigSource
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.RWMutex
	enabled   bool
	publicKey string
	watchers  map[int]func(bool)
	nextID    int
}

// NewConfigPoller creates a poller. Call Run to start polling.
func NewConfigPoller(cfg ConfigPollerConfig) *ConfigPoller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ConfigPoller{
		source:   cfg.Source,
		interval: interval,
		logger:   cfg.Logger,
		enabled:  cfg.Initial,
		watchers: make(map[int]func(bool)),
	}
}

// Run polls until ctx is done.
func (p *ConfigPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("refreshing push config")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches the configuration once and notifies watchers on change.
func (p *ConfigPoller) Refresh(ctx context.Context) error {
	cfg, err := p.source.Config(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	changed := p.enabled != cfg.NudgeEnabled
	p.enabled = cfg.NudgeEnabled
	p.publicKey = cfg.PublicKey
	var notify []func(bool)
	if changed {
		for _, fn := range p.watchers {
			notify = append(notify, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range notify {
		fn(cfg.NudgeEnabled)
	}
	return nil
}

// NudgeEnabled returns the last polled value.
func (p *ConfigPoller) NudgeEnabled(context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// PublicKey returns the last polled VAPID public key.
func (p *ConfigPoller) PublicKey() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publicKey
}

// Watch registers fn to be called by Refresh whenever the polled flag
// changes. The returned func unregisters it.
func (p *ConfigPoller) Watch(fn func(bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}
