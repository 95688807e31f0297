package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one upstream.
type Health struct {
	// Name is the client name; for push services, the endpoint host.
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	// Struggling is set for passive breakers whose recent failure ratio
	// would have opened an active one.
	Struggling bool

	// Zero when no call has succeeded or failed yet.
	LastSuccessAt time.Time
	LastFailureAt time.Time
	LastError     string
}

// Available reports whether the upstream is serving normally. A half-open
// breaker only lets probes through, so it is not available.
func (h Health) Available() bool {
	return h.State == gobreaker.StateClosed && !h.Struggling
}

// Registry tracks clients and the outcome of their last calls. The API
// reports it on /v1/ops/ready.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	client        *Client
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds client under name, replacing any previous client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{client: client}
}

func (r *Registry) observe(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return
	}
	now := time.Now()
	if err == nil {
		e.lastSuccessAt = now
		return
	}
	e.lastFailureAt = now
	e.lastError = err.Error()
}

// Health returns the health of name.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Health{}, false
	}
	return e.health(name), true
}

// All returns the health of every client, sorted by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.health(name))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *entry) health(name string) Health {
	return Health{
		Name:          name,
		State:         e.client.State(),
		Counts:        e.client.Counts(),
		Struggling:    e.client.Struggling(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
