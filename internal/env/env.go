// Package env resolves the process-wide Environment: where the backend lives,
// how calls are timed and retried, and which principals the run may act as.
package env

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"coach-qa/internal/identity"
)

const (
	KeyBackendURL       = "BACKEND_URL"
	KeyLegacyBackendURL = "REACT_APP_BACKEND_URL"
	KeyAPIPrefix        = "API_PREFIX"
	KeyTimeoutMs        = "DEFAULT_TIMEOUT_MS"
	KeyRetryMaxAttempts = "RETRY_MAX_ATTEMPTS"
	KeyRetryBaseMs      = "RETRY_BASE_MS"
	KeyTenantHeader     = "TENANT_HEADER"

	principalPrefix = "PRINCIPAL_"
	featurePrefix   = "FEATURE_"
)

const (
	DefaultAPIPrefix   = "/api"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 200 * time.Millisecond
)

var ErrConfig = errors.New("configuration error")

// ConfigError lists every problem found while resolving, so a single run
// reports all missing names at once.
type ConfigError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func (e *ConfigError) empty() bool { return len(e.Missing) == 0 && len(e.Problems) == 0 }

func (e *ConfigError) problem(format string, a ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, a...))
}

type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

// Environment is immutable once resolved.
type Environment struct {
	baseURL      string
	apiPrefix    string
	tenantHeader string
	timeout      time.Duration
	retry        RetryPolicy
	principals   map[string]identity.Principal
	features     map[string]bool
	vars         map[string]string
}

func (e *Environment) BaseURL() string              { return e.baseURL }
func (e *Environment) APIPrefix() string            { return e.apiPrefix }
func (e *Environment) TenantHeader() string         { return e.tenantHeader }
func (e *Environment) DefaultTimeout() time.Duration { return e.timeout }
func (e *Environment) Retry() RetryPolicy           { return e.retry }

// Vars returns a copy of the interpolation variables supplied by env files.
func (e *Environment) Vars() map[string]string { return maps.Clone(e.vars) }

// Feature reports a FEATURE_<NAME> flag and whether it was set at all.
func (e *Environment) Feature(name string) (enabled, known bool) {
	enabled, known = e.features[strings.ToLower(name)]
	return enabled, known
}

func (e *Environment) Principal(name string) (identity.Principal, bool) {
	p, ok := e.principals[name]
	return p, ok
}

// Directory exposes the declared principals to scenario contexts.
func (e *Environment) Directory() *identity.Directory {
	ps := make([]identity.Principal, 0, len(e.principals))
	for _, p := range e.principals {
		ps = append(ps, p)
	}
	return identity.NewDirectory(ps...)
}

// Resolve builds an Environment from flat key/value config. vars become
// ${KEY} interpolation variables and are not otherwise interpreted.
func Resolve(values, vars map[string]string) (*Environment, error) {
	cerr := &ConfigError{}
	e := &Environment{
		apiPrefix:    DefaultAPIPrefix,
		tenantHeader: identity.DefaultTenantHeader,
		timeout:      DefaultTimeout,
		retry:        RetryPolicy{MaxAttempts: DefaultMaxAttempts, Base: DefaultRetryBase},
		principals:   map[string]identity.Principal{},
		features:     map[string]bool{},
		vars:         maps.Clone(vars),
	}
	if e.vars == nil {
		e.vars = map[string]string{}
	}

	raw := strings.TrimSpace(values[KeyBackendURL])
	if raw == "" {
		raw = strings.TrimSpace(values[KeyLegacyBackendURL])
	}
	if raw == "" {
		cerr.Missing = append(cerr.Missing, KeyBackendURL)
	} else if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		cerr.problem("%s must be an absolute http(s) URL, got %q", KeyBackendURL, raw)
	} else {
		e.baseURL = strings.TrimRight(raw, "/")
	}

	if v, ok := values[KeyAPIPrefix]; ok {
		e.apiPrefix = normalizePrefix(v)
	}
	if v := strings.TrimSpace(values[KeyTenantHeader]); v != "" {
		e.tenantHeader = v
	}
	if n, ok := positiveInt(values, KeyTimeoutMs, cerr); ok {
		e.timeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt(values, KeyRetryMaxAttempts, cerr); ok {
		e.retry.MaxAttempts = n
	}
	if n, ok := positiveInt(values, KeyRetryBaseMs, cerr); ok {
		e.retry.Base = time.Duration(n) * time.Millisecond
	}

	resolvePrincipals(e, values, cerr)
	resolveFeatures(e, values, cerr)

	if !cerr.empty() {
		sort.Strings(cerr.Missing)
		sort.Strings(cerr.Problems)
		return nil, cerr
	}
	return e, nil
}

type principalDecl struct {
	email, role, token string
	hasRole, hasToken  bool
}

func resolvePrincipals(e *Environment, values map[string]string, cerr *ConfigError) {
	decls := map[string]*principalDecl{}
	get := func(name string) *principalDecl {
		d, ok := decls[name]
		if !ok {
			d = &principalDecl{}
			decls[name] = d
		}
		return d
	}
	for k, v := range values {
		if !strings.HasPrefix(k, principalPrefix) {
			continue
		}
		rest := strings.TrimPrefix(k, principalPrefix)
		switch {
		case strings.HasSuffix(rest, "_EMAIL"):
			get(principalName(rest, "_EMAIL")).email = strings.TrimSpace(v)
		case strings.HasSuffix(rest, "_ROLE"):
			d := get(principalName(rest, "_ROLE"))
			d.role, d.hasRole = v, true
		case strings.HasSuffix(rest, "_TOKEN"):
			d := get(principalName(rest, "_TOKEN"))
			d.token, d.hasToken = strings.TrimSpace(v), true
		}
	}

	for name, d := range decls {
		if name == "" {
			cerr.problem("principal variable with empty name")
			continue
		}
		if name == identity.AnonymousName {
			cerr.problem("principal %q is reserved", name)
			continue
		}
		if d.email == "" {
			cerr.Missing = append(cerr.Missing, principalPrefix+strings.ToUpper(name)+"_EMAIL")
			continue
		}
		role := identity.RolePartner
		if name == string(identity.RoleSuperAdmin) {
			role = identity.RoleSuperAdmin
		}
		if d.hasRole {
			r, err := identity.ParseRole(d.role)
			if err != nil {
				cerr.problem("principal %q: %v", name, err)
				continue
			}
			role = r
		}
		e.principals[name] = identity.New(name, d.email, role, e.tenantHeader, d.token)
	}
}

func principalName(rest, suffix string) string {
	return strings.ToLower(strings.TrimSuffix(rest, suffix))
}

func resolveFeatures(e *Environment, values map[string]string, cerr *ConfigError) {
	for k, v := range values {
		if !strings.HasPrefix(k, featurePrefix) {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			cerr.problem("%s must be a boolean, got %q", k, v)
			continue
		}
		e.features[strings.ToLower(strings.TrimPrefix(k, featurePrefix))] = b
	}
}

func positiveInt(values map[string]string, key string, cerr *ConfigError) (int, bool) {
	v, ok := values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		cerr.problem("%s must be a positive integer, got %q", key, v)
		return 0, false
	}
	return n, true
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
