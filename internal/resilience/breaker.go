// Package resilience wraps outbound HTTP calls to push services and to the
// subscription store API with circuit breakers, timeouts and bounded
// retries.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures one circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and readiness output.
	Name string

	// HalfOpenProbes is how many calls may pass while half-open.
	// Default: 1
	HalfOpenProbes uint32

	// OpenFor is how long the breaker rejects calls before probing.
	// Default: 30 seconds
	OpenFor time.Duration

	// The breaker opens once MinRequests calls were counted and at least
	// FailureRatio of them failed.
	// Defaults: 5 and 0.5
	MinRequests  uint32
	FailureRatio float64

	// Window clears the counts periodically while closed. Zero keeps them
	// until the breaker opens.
	Window time.Duration

	// Passive breakers count outcomes but never open. Calls always go
	// through; ShouldTrip only marks the upstream as struggling.
	Passive bool

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the settings used for push service hosts and
// the store API.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:           name,
		HalfOpenProbes: 1,
		OpenFor:        30 * time.Second,
		MinRequests:    5,
		FailureRatio:   0.5,
	}
}

// ShouldTrip reports whether counts open the breaker.
func (c BreakerConfig) ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig(c.Name)
	if c.HalfOpenProbes == 0 {
		c.HalfOpenProbes = d.HalfOpenProbes
	}
	if c.OpenFor <= 0 {
		c.OpenFor = d.OpenFor
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = d.FailureRatio
	}
	return c
}

// PassiveBreakerConfig returns settings for push service hosts. A push host
// serves many unrelated endpoints, so one endpoint failing must not stop
// delivery to the others.
func PassiveBreakerConfig(name string) BreakerConfig {
	cfg := DefaultBreakerConfig(name)
	cfg.Passive = true
	cfg.Window = time.Minute
	return cfg
}

// newBreaker builds a gobreaker from cfg, which must already carry its
// defaults. A call abandoned by its caller is not held against the upstream.
func newBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	trip := cfg.ShouldTrip
	if cfg.Passive {
		trip = func(gobreaker.Counts) bool { return false }
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenProbes,
		Interval:      cfg.Window,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   trip,
		OnStateChange: cfg.OnStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}
