package featureflags

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps flag values in a map. It backs the memory store
// driver and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository returns a repository holding flags.
func NewInMemoryRepository(flags ...Flag) *InMemoryRepository {
	r := &InMemoryRepository{flags: make(map[string]Flag, len(flags))}
	for _, f := range flags {
		r.flags[f.Key] = f
	}
	return r
}

// Get retrieves a stored flag by key.
func (r *InMemoryRepository) Get(_ context.Context, key string) (Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[key]
	if !ok {
		return Flag{}, ErrFlagNotFound
	}
	return f, nil
}

// List returns the stored flags sorted by key.
func (r *InMemoryRepository) List(_ context.Context) ([]Flag, error) {
	r.mu.RLock()
	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, f)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Upsert stores flags, stamping UpdatedAt when it is zero.
func (r *InMemoryRepository) Upsert(_ context.Context, flags ...Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, f := range flags {
		if f.UpdatedAt.IsZero() {
			f.UpdatedAt = now
		}
		r.flags[f.Key] = f
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
