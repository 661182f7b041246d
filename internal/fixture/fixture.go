// Package fixture tracks the entities a scenario created and deletes them in
// reverse order when the scenario ends, whatever its outcome.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"coach-qa/internal/httpclient"
	"coach-qa/internal/identity"
	"coach-qa/pkg/logging"
)

// ErrUnknownKind is returned when a kind has no standard recipe and none
// was supplied.
var ErrUnknownKind = errors.New("no teardown recipe for fixture kind")

// Doer issues one request as a principal. *httpclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, p identity.Principal, r httpclient.Request) (*httpclient.Response, error)
}

// Recipe describes how to delete a fixture. Path may contain {id}.
// Principal, when set, names the identity that must perform the deletion
// instead of the one that created the entity.
type Recipe struct {
	Method    string
	Path      string
	Body      any
	Principal string
}

func (r Recipe) request(id string) httpclient.Request {
	method := r.Method
	if method == "" {
		method = http.MethodDelete
	}
	return httpclient.Request{
		Method: strings.ToUpper(method),
		Path:   strings.ReplaceAll(r.Path, "{id}", id),
		Body:   r.Body,
	}
}

var softDelete = map[string]any{"is_deleted": true}

// Standard recipes per fixture kind.
var standard = map[string]Recipe{
	"reservation":          {Method: http.MethodDelete, Path: "/reservations/{id}"},
	"campaign":             {Method: http.MethodDelete, Path: "/campaigns/{id}"},
	"participant":          {Method: http.MethodDelete, Path: "/chat/participants/{id}"},
	"session":              {Method: http.MethodPut, Path: "/chat/sessions/{id}", Body: softDelete},
	"media_link":           {Method: http.MethodDelete, Path: "/media/{id}"},
	"discount_code":        {Method: http.MethodDelete, Path: "/discount-codes/{id}"},
	"offer":                {Method: http.MethodDelete, Path: "/offers/{id}"},
	"course":               {Method: http.MethodDelete, Path: "/courses/{id}"},
	"chat_emoji":           {Method: http.MethodDelete, Path: "/chat/emojis/{id}"},
	"private_conversation": {Method: http.MethodDelete, Path: "/private/conversations/{id}"},
}

// Standard returns the built-in recipe for kind.
func Standard(kind string) (Recipe, bool) {
	r, ok := standard[kind]
	return r, ok
}

// Kinds lists the kinds with a standard recipe.
func Kinds() []string {
	out := make([]string, 0, len(standard))
	for k := range standard {
		out = append(out, k)
	}
	return out
}

type Fixture struct {
	Kind      string
	ID        string
	Recipe    Recipe
	Principal identity.Principal
}

func (f Fixture) String() string { return f.Kind + ":" + f.ID }

// Attempt is the outcome of one deletion.
type Attempt struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Status int    `json:"status,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Outcome summarizes an unwind. Warnings hold one entry per failed deletion.
type Outcome struct {
	Attempts []Attempt
	Warnings []error
}

// Err joins the warnings, or returns nil when every deletion succeeded.
func (o Outcome) Err() error { return errors.Join(o.Warnings...) }

// Registry is a scenario-scoped stack of fixtures.
type Registry struct {
	mu         sync.Mutex
	stack      []Fixture
	registered int

	unwound Outcome
}

func NewRegistry() *Registry { return &Registry{} }

// Register pushes a fixture owned by p. A nil recipe selects the standard
// recipe for kind. Registering the same (kind, id) twice is a no-op.
func (r *Registry) Register(kind, id string, recipe *Recipe, p identity.Principal) error {
	if kind == "" || id == "" {
		return fmt.Errorf("register fixture: kind and id are required (got %q, %q)", kind, id)
	}
	var rec Recipe
	if recipe != nil {
		rec = *recipe
	} else {
		std, ok := standard[kind]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		rec = std
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.stack {
		if f.Kind == kind && f.ID == id {
			return nil
		}
	}
	r.stack = append(r.stack, Fixture{Kind: kind, ID: id, Recipe: rec, Principal: p})
	r.registered++
	logging.Debug("fixture", "registered %s:%s as %s", kind, id, p.Name)
	return nil
}

// Len reports the fixtures still pending teardown.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// Registered counts distinct fixtures ever registered, torn down or not.
func (r *Registry) Registered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered
}

// Pending returns the fixtures in registration order.
func (r *Registry) Pending() []Fixture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Fixture(nil), r.stack...)
}

// Resolver maps a recipe's principal name to an identity.
type Resolver func(name string) (identity.Principal, bool)

// Delete tears down one fixture ahead of the scenario end and removes it
// from the stack. Its attempt is recorded with the final unwind outcome.
func (r *Registry) Delete(ctx context.Context, d Doer, resolve Resolver, kind, id string) (Attempt, error) {
	r.mu.Lock()
	idx := -1
	for i, f := range r.stack {
		if f.Kind == kind && f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return Attempt{}, fmt.Errorf("teardown %s:%s: not registered", kind, id)
	}
	f := r.stack[idx]
	r.stack = append(r.stack[:idx], r.stack[idx+1:]...)
	r.mu.Unlock()

	a, err := remove(ctx, d, resolve, f)
	r.mu.Lock()
	r.unwound.Attempts = append(r.unwound.Attempts, a)
	if err != nil {
		r.unwound.Warnings = append(r.unwound.Warnings, err)
	}
	r.mu.Unlock()
	return a, err
}

// Unwind deletes every pending fixture in LIFO order with its recorded
// principal. It never stops early: each failure becomes a warning.
func (r *Registry) Unwind(ctx context.Context, d Doer, resolve Resolver) Outcome {
	r.mu.Lock()
	stack := r.stack
	r.stack = nil
	out := r.unwound
	r.unwound = Outcome{}
	r.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		a, err := remove(ctx, d, resolve, stack[i])
		out.Attempts = append(out.Attempts, a)
		if err != nil {
			out.Warnings = append(out.Warnings, err)
		}
	}
	return out
}

func remove(ctx context.Context, d Doer, resolve Resolver, f Fixture) (a Attempt, err error) {
	a = Attempt{Kind: f.Kind, ID: f.ID}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("teardown %s: panic: %v", f, p)
			a.OK = false
			a.Error = err.Error()
		}
		if err != nil {
			logging.Warn("fixture", "%v", err)
		}
	}()

	p := f.Principal
	if f.Recipe.Principal != "" && resolve != nil {
		rp, ok := resolve(f.Recipe.Principal)
		if !ok {
			err = fmt.Errorf("teardown %s: unknown principal %q", f, f.Recipe.Principal)
			a.Error = err.Error()
			return a, err
		}
		p = rp
	}

	resp, derr := d.Do(ctx, p, f.Recipe.request(f.ID))
	if derr != nil {
		err = fmt.Errorf("teardown %s: %w", f, derr)
		a.Error = err.Error()
		return a, err
	}
	a.Status = resp.Status
	// Already gone counts as removed.
	if resp.Status == http.StatusNotFound || (resp.Status >= 200 && resp.Status < 300) {
		a.OK = true
		logging.Debug("fixture", "removed %s (status %d)", f, resp.Status)
		return a, nil
	}
	err = fmt.Errorf("teardown %s: %s %s returned %d", f, resp.Request.Method, resp.Request.URL, resp.Status)
	a.Error = err.Error()
	return a, err
}
