package httpclient

import (
	"net/http"
	"sync"
	"time"
)

type poolKey struct {
	principal string
	origin    string
}

// Pools holds one *http.Client per (principal, origin). Clients carry no
// scenario state and may be shared across scenarios and missions.
type Pools struct {
	mu      sync.Mutex
	clients map[poolKey]*http.Client
}

func NewPools() *Pools {
	return &Pools{clients: map[poolKey]*http.Client{}}
}

func (p *Pools) For(principal, origin string) *http.Client {
	k := poolKey{principal: principal, origin: origin}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[k]; ok {
		return c
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	c := &http.Client{Transport: tr}
	p.clients[k] = c
	return c
}

func (p *Pools) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// CloseIdle drops idle connections of every pool.
func (p *Pools) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}
