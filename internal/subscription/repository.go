package subscription

import "context"

// Repository defines the interface for subscription persistence.
// Upsert and delete are expected to be atomic at the storage layer.
type Repository interface {
	// Upsert creates or replaces the subscription for its endpoint.
	// Returns true if a new record was created, false if an existing one was updated.
	Upsert(ctx context.Context, sub *Subscription) (created bool, err error)

	// DeleteByEndpoint removes the subscription for an endpoint.
	// Deleting an unknown endpoint is not an error.
	DeleteByEndpoint(ctx context.Context, endpoint string) error

	// DeleteByEndpoints removes every listed endpoint and returns how many were removed.
	DeleteByEndpoints(ctx context.Context, endpoints []string) (int, error)

	// ListAll returns every stored subscription.
	ListAll(ctx context.Context) ([]*Subscription, error)

	// Count returns the number of stored subscriptions.
	Count(ctx context.Context) (int, error)
}
