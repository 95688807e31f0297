package featureflags

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long a loaded snapshot is served before the
	// repository is read again.
	// Default: 1 minute
	CacheTTL time.Duration

	// Defaults replaces DefaultFlags.
	Defaults []Flag
}

// Service reads flags through a snapshot cache.
//
// When the repository fails the last snapshot keeps being served, or the
// defaults if nothing was ever loaded. The next read after CacheTTL retries.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults map[string]Flag

	mu       sync.Mutex
	snapshot map[string]Flag
	loadedAt time.Time
}

// NewService creates a feature flag service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultFlags()
	}

	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger.With().Str("component", "featureflags").Logger(),
		ttl:      ttl,
		defaults: make(map[string]Flag, len(defaults)),
	}
	for _, f := range defaults {
		s.defaults[f.Key] = f
	}
	return s
}

// Get returns the current value of key.
func (s *Service) Get(ctx context.Context, key string) (Flag, bool) {
	f, ok := s.load(ctx)[key]
	return f, ok
}

// Enabled reports whether key is set. Unknown keys read as false.
func (s *Service) Enabled(ctx context.Context, key string) bool {
	f, _ := s.Get(ctx, key)
	return f.Enabled
}

// All returns every flag, defaults included, sorted by key.
func (s *Service) All(ctx context.Context) []Flag {
	snap := s.load(ctx)
	out := make([]Flag, 0, len(snap))
	for _, f := range snap {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Set stores flags and applies them to the cached snapshot. Unknown keys
// are rejected before anything is written.
func (s *Service) Set(ctx context.Context, flags ...Flag) error {
	now := time.Now()
	for i := range flags {
		if err := flags[i].Validate(); err != nil {
			return err
		}
		flags[i].UpdatedAt = now
	}

	if err := s.repo.Upsert(ctx, flags...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		next := cloneFlags(s.snapshot)
		for _, f := range flags {
			next[f.Key] = f
		}
		s.snapshot = next
	}
	return nil
}

// Invalidate drops the snapshot so the next read goes to the repository.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.loadedAt = time.Time{}
}

// IsPushNudgeEnabled reports whether clients may prompt users to opt in.
func (s *Service) IsPushNudgeEnabled(ctx context.Context) bool {
	return s.Enabled(ctx, FlagPushNudgeEnabled)
}

// IsPushSendingDisabled reports whether dispatching is switched off.
func (s *Service) IsPushSendingDisabled(ctx context.Context) bool {
	return s.Enabled(ctx, FlagDisablePushSending)
}

// load returns the snapshot, refreshing it once it is older than the TTL.
// The returned map is shared and must not be modified.
func (s *Service) load(ctx context.Context) map[string]Flag {
	s.mu.Lock()
	if s.snapshot != nil && time.Since(s.loadedAt) < s.ttl {
		snap := s.snapshot
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	stored, err := s.repo.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Now()

	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load feature flags, serving last known values")
		if s.snapshot == nil {
			s.snapshot = cloneFlags(s.defaults)
		}
		return s.snapshot
	}

	next := cloneFlags(s.defaults)
	for _, f := range stored {
		next[f.Key] = f
	}
	s.snapshot = next
	return next
}

func cloneFlags(m map[string]Flag) map[string]Flag {
	out := make(map[string]Flag, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
