package subscription

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/pkg/vapidkey"
)

// RegisterInput is the data received when a device (re)subscribes.
type RegisterInput struct {
	Endpoint  string
	P256dh    string
	Auth      string
	UserID    *string
	Platform  *string
	UserAgent *string
}

// ServiceConfig holds configuration for the subscription service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Service provides subscription lifecycle operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new subscription service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    now,
	}
}

// Register validates and upserts a subscription keyed by its endpoint.
// Returns whether a new record was created.
func (s *Service) Register(ctx context.Context, input RegisterInput) (bool, error) {
	if err := validateInput(input); err != nil {
		return false, err
	}

	now := s.now()
	sub := &Subscription{
		Endpoint: strings.TrimSpace(input.Endpoint),
		Keys: Keys{
			P256dh: input.P256dh,
			Auth:   input.Auth,
		},
		UserID:    nonEmpty(input.UserID),
		Platform:  nonEmpty(input.Platform),
		UserAgent: nonEmpty(input.UserAgent),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Upsert(ctx, sub)
	if err != nil {
		return false, fmt.Errorf("upsert subscription: %w", err)
	}

	s.logger.Info().
		Str("endpoint", sub.EndpointSuffix()).
		Bool("created", created).
		Msg("push subscription stored")

	return created, nil
}

// Remove deletes the subscription for an endpoint.
func (s *Service) Remove(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}

	if err := s.repo.DeleteByEndpoint(ctx, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	s.logger.Info().
		Str("endpoint", EndpointSuffix(endpoint)).
		Msg("push subscription removed")
	return nil
}

// List returns every stored subscription.
func (s *Service) List(ctx context.Context) ([]*Subscription, error) {
	return s.repo.ListAll(ctx)
}

// Count returns the number of stored subscriptions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func validateInput(input RegisterInput) error {
	if err := validateEndpoint(strings.TrimSpace(input.Endpoint)); err != nil {
		return err
	}
	if _, err := vapidkey.Decode(input.P256dh); err != nil {
		return fmt.Errorf("%w: p256dh: %v", ErrInvalidSubscription, err)
	}
	if _, err := vapidkey.Decode(input.Auth); err != nil {
		return fmt.Errorf("%w: auth: %v", ErrInvalidSubscription, err)
	}
	return nil
}

// validateEndpoint requires an absolute https URL. Plain http is accepted
// only for loopback hosts, mirroring the browser's secure-context rule.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute URL", ErrInvalidSubscription)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return fmt.Errorf("%w: endpoint must use https", ErrInvalidSubscription)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
