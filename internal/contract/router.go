// Package contract maps exercised requests onto the operations of an
// OpenAPI document so a run can report endpoint coverage.
package contract

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

type Router struct {
	doc    *openapi3.T
	router routers.Router
}

func LoadFromFile(path string) (*Router, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func LoadFromBytes(b []byte) (*Router, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromData(b)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func build(doc *openapi3.T) (*Router, error) {
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	// Match on paths alone: the run's base URL rarely equals the documented server.
	doc.Servers = nil
	r, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	return &Router{doc: doc, router: r}, nil
}

func (r *Router) Doc() *openapi3.T { return r.doc }

// Match returns the templated path and method of the first candidate path
// that resolves to a documented operation.
func (r *Router) Match(method string, candidates ...string) (routePath, routeMethod string, ok bool) {
	for _, c := range candidates {
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		route, _, err := r.router.FindRoute(&http.Request{Method: method, URL: u})
		if err != nil {
			continue
		}
		return route.Path, route.Method, true
	}
	return "", "", false
}

// Coverage records matched operations. Safe for concurrent use.
type Coverage struct {
	router *Router

	mu      sync.Mutex
	covered map[string]map[string]bool // method -> pathTemplate -> true
}

func NewCoverage(r *Router) *Coverage {
	return &Coverage{router: r, covered: map[string]map[string]bool{}}
}

func (c *Coverage) Doc() *openapi3.T { return c.router.Doc() }

// Record marks the operation behind method and candidates as exercised.
func (c *Coverage) Record(method string, candidates ...string) bool {
	path, m, ok := c.router.Match(method, candidates...)
	if !ok {
		return false
	}
	m = strings.ToUpper(m)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.covered[m] == nil {
		c.covered[m] = map[string]bool{}
	}
	c.covered[m][path] = true
	return true
}

// Covered returns a snapshot of the recorded operations.
func (c *Coverage) Covered() map[string]map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]bool, len(c.covered))
	for m, paths := range c.covered {
		out[m] = maps.Clone(paths)
	}
	return out
}
