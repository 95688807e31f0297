// Package subscription stores web push subscriptions keyed by their endpoint URL.
package subscription

import (
	"errors"
	"time"
)

// Repository and service errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidSubscription  = errors.New("invalid subscription")
)

// Keys is the per-endpoint key material issued by the browser push service.
type Keys struct {
	P256dh string
	Auth   string
}

// Subscription is one browser/device registration for push delivery.
// Endpoint is the natural primary key.
type Subscription struct {
	Endpoint  string
	Keys      Keys
	UserID    *string
	Platform  *string
	UserAgent *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EndpointSuffix returns the tail of the endpoint for log output.
// Push service endpoints are capability URLs and should not be logged whole.
func (s *Subscription) EndpointSuffix() string {
	return EndpointSuffix(s.Endpoint)
}

// EndpointSuffix returns the last 12 characters of an endpoint URL.
func EndpointSuffix(endpoint string) string {
	const n = 12
	if len(endpoint) <= n {
		return endpoint
	}
	return "…" + endpoint[len(endpoint)-n:]
}

// copySubscription creates a deep copy of a subscription.
func copySubscription(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}

	subCopy := &Subscription{
		Endpoint:  s.Endpoint,
		Keys:      s.Keys,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}

	if s.UserID != nil {
		val := *s.UserID
		subCopy.UserID = &val
	}
	if s.Platform != nil {
		val := *s.Platform
		subCopy.Platform = &val
	}
	if s.UserAgent != nil {
		val := *s.UserAgent
		subCopy.UserAgent = &val
	}

	return subCopy
}
