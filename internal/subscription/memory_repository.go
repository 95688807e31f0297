package subscription

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-node development. Production should use
// the PostgreSQL implementation.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // keyed by endpoint
}

// NewInMemoryRepository creates a new in-memory subscription repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		subs: make(map[string]*Subscription),
	}
}

// Upsert creates or replaces the subscription for its endpoint.
func (r *InMemoryRepository) Upsert(_ context.Context, sub *Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copySubscription(sub)
	if existing, ok := r.subs[sub.Endpoint]; ok {
		// Keep the original creation time
		stored.CreatedAt = existing.CreatedAt
		r.subs[sub.Endpoint] = stored
		return false, nil
	}

	r.subs[sub.Endpoint] = stored
	return true, nil
}

// DeleteByEndpoint removes the subscription for an endpoint.
func (r *InMemoryRepository) DeleteByEndpoint(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, endpoint)
	return nil
}

// DeleteByEndpoints removes every listed endpoint.
func (r *InMemoryRepository) DeleteByEndpoints(_ context.Context, endpoints []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, endpoint := range endpoints {
		if _, ok := r.subs[endpoint]; ok {
			delete(r.subs, endpoint)
			removed++
		}
	}
	return removed, nil
}

// ListAll returns every stored subscription ordered by endpoint.
func (r *InMemoryRepository) ListAll(_ context.Context) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		items = append(items, copySubscription(sub))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Endpoint < items[j].Endpoint
	})
	return items, nil
}

// Count returns the number of stored subscriptions.
func (r *InMemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs), nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
