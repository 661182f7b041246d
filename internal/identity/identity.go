// Package identity models the acting principal of a scenario and the headers
// the backend uses to derive tenant and role from it.
package identity

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Role is what the backend grants a principal.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RolePartner    Role = "partner"
	RoleAnonymous  Role = "anonymous"
)

// ParseRole accepts the three known roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSuperAdmin, RolePartner, RoleAnonymous:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// AnonymousName is the reserved name of the principal that sends no tenant header.
const AnonymousName = "anonymous"

// DefaultTenantHeader carries the acting principal's email.
const DefaultTenantHeader = "X-User-Email"

// Principal is a named identity. The zero value is not usable; build one with
// New or Anonymous.
type Principal struct {
	Name  string
	Email string
	Role  Role

	headers map[string]string
}

// New builds a principal asserting email through tenantHeader. A non-empty token
// adds a bearer Authorization header.
func New(name, email string, role Role, tenantHeader, token string) Principal {
	if tenantHeader == "" {
		tenantHeader = DefaultTenantHeader
	}
	h := map[string]string{}
	if role != RoleAnonymous && email != "" {
		h[tenantHeader] = email
	}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return Principal{Name: name, Email: email, Role: role, headers: h}
}

// Anonymous returns the principal that emits no tenant header.
func Anonymous() Principal {
	return Principal{Name: AnonymousName, Role: RoleAnonymous, headers: map[string]string{}}
}

// Headers returns a fresh copy of the headers this principal attaches to every call.
func (p Principal) Headers() map[string]string {
	return maps.Clone(p.headers)
}

func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }
func (p Principal) IsPartner() bool    { return p.Role == RolePartner }
func (p Principal) IsAnonymous() bool  { return p.Role == RoleAnonymous }

func (p Principal) String() string {
	if p.Email == "" {
		return p.Name
	}
	return p.Name + "<" + p.Email + ">"
}

// ---- Directory ----

// Directory resolves principal names. It always knows the anonymous principal.
type Directory struct {
	byName map[string]Principal
}

func NewDirectory(ps ...Principal) *Directory {
	d := &Directory{byName: map[string]Principal{AnonymousName: Anonymous()}}
	for _, p := range ps {
		d.byName[p.Name] = p
	}
	return d
}

func (d *Directory) Lookup(name string) (Principal, bool) {
	if name == "" {
		name = AnonymousName
	}
	p, ok := d.byName[name]
	return p, ok
}

// Names lists declared principals, sorted.
func (d *Directory) Names() []string {
	out := make([]string, 0, len(d.byName))
	for n := range d.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ---- Context ----

// Context is the scenario-local binding of the current principal.
type Context struct {
	dir     *Directory
	current Principal
}

// NewContext binds the named principal (anonymous when empty).
func NewContext(dir *Directory, initial string) (*Context, error) {
	c := &Context{dir: dir, current: Anonymous()}
	if err := c.Switch(initial); err != nil {
		return nil, err
	}
	return c, nil
}

// Switch rebinds the context. On error the previous binding is kept.
func (c *Context) Switch(name string) error {
	p, ok := c.dir.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown principal %q", name)
	}
	c.current = p
	return nil
}

func (c *Context) Current() Principal { return c.current }
func (c *Context) IsSuperAdmin() bool { return c.current.IsSuperAdmin() }
func (c *Context) IsPartner() bool    { return c.current.IsPartner() }
