package resilience

import (
	"net/http"
	"sync"
)

// HostPool hands out one Client per request host so that each push service
// (for example one vendor's endpoint host) has its own breaker and health
// entry. Push delivery uses PassiveBreakerConfig so that a host shared by
// many endpoints is observed, never closed off.
// HostPool implements Do(*http.Request) and can be used wherever an
// *http.Client-like doer is expected.
type HostPool struct {
	template ClientConfig

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHostPool creates a pool. Each client is built from template and named
// after its host, so template.Name is ignored.
func NewHostPool(template ClientConfig) *HostPool {
	return &HostPool{
		template: template,
		clients:  make(map[string]*Client),
	}
}

// Do routes req through the client for req.URL.Host.
func (p *HostPool) Do(req *http.Request) (*http.Response, error) {
	return p.ClientFor(req.URL.Host).Do(req)
}

// ClientFor returns the client for host, creating it on first use.
func (p *HostPool) ClientFor(host string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[host]; ok {
		return c
	}

	cfg := p.template
	cfg.Name = host

	c := NewClient(cfg)
	p.clients[host] = c
	return c
}
