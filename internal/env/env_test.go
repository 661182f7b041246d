package env_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"coach-qa/internal/env"
	"coach-qa/internal/identity"
)

func TestResolve_DefaultsAndPrincipals(t *testing.T) {
	e, err := env.Resolve(map[string]string{
		"BACKEND_URL":                 "https://crm.example.com//",
		"PRINCIPAL_SUPER_ADMIN_EMAIL": "contact.artboost@gmail.com",
		"PRINCIPAL_PARTNER_EMAIL":     "nouveau.partenaire@test.com",
		"PRINCIPAL_COACH_EMAIL":       "coach@test.com",
		"PRINCIPAL_COACH_ROLE":        "PARTNER",
		"FEATURE_SCHEDULER":           "false",
		"UNRELATED":                   "ignored",
	}, nil)
	require.NoError(t, err)

	if got := e.BaseURL(); got != "https://crm.example.com" {
		t.Fatalf("BaseURL = %q", got)
	}
	if e.APIPrefix() != "/api" || e.DefaultTimeout() != 15*time.Second {
		t.Fatalf("defaults: prefix=%q timeout=%v", e.APIPrefix(), e.DefaultTimeout())
	}
	if diff := cmp.Diff(env.RetryPolicy{MaxAttempts: 3, Base: 200 * time.Millisecond}, e.Retry()); diff != "" {
		t.Fatalf("retry mismatch (-want +got):\n%s", diff)
	}

	admin, ok := e.Principal("super_admin")
	require.True(t, ok)
	if admin.Role != identity.RoleSuperAdmin {
		t.Fatalf("super_admin role = %s", admin.Role)
	}
	partner, _ := e.Principal("partner")
	if partner.Role != identity.RolePartner {
		t.Fatalf("partner role = %s", partner.Role)
	}
	if _, ok := e.Principal("coach"); !ok {
		t.Fatal("coach principal missing")
	}
	if on, known := e.Feature("scheduler"); on || !known {
		t.Fatalf("feature scheduler = %v known=%v", on, known)
	}
	if _, ok := e.Directory().Lookup("anonymous"); !ok {
		t.Fatal("directory must always know anonymous")
	}
}

func TestResolve_LegacyAliasAndOverrides(t *testing.T) {
	e, err := env.Resolve(map[string]string{
		"REACT_APP_BACKEND_URL": "http://localhost:8001/",
		"API_PREFIX":            "v2/",
		"DEFAULT_TIMEOUT_MS":    "500",
		"RETRY_MAX_ATTEMPTS":    "5",
		"RETRY_BASE_MS":         "10",
		"TENANT_HEADER":         "X-Coach",
		"PRINCIPAL_BOB_EMAIL":   "bob@test.com",
	}, nil)
	require.NoError(t, err)
	if e.BaseURL() != "http://localhost:8001" || e.APIPrefix() != "/v2" {
		t.Fatalf("base=%q prefix=%q", e.BaseURL(), e.APIPrefix())
	}
	if e.DefaultTimeout() != 500*time.Millisecond || e.Retry().MaxAttempts != 5 || e.Retry().Base != 10*time.Millisecond {
		t.Fatalf("timing: %v %+v", e.DefaultTimeout(), e.Retry())
	}
	bob, _ := e.Principal("bob")
	if bob.Headers()["X-Coach"] != "bob@test.com" {
		t.Fatalf("tenant header not applied: %v", bob.Headers())
	}
}

func TestResolve_CollectsAllProblems(t *testing.T) {
	_, err := env.Resolve(map[string]string{
		"DEFAULT_TIMEOUT_MS":   "-1",
		"PRINCIPAL_GHOST_ROLE": "partner",
		"PRINCIPAL_ROOT_EMAIL": "root@test.com",
		"PRINCIPAL_ROOT_ROLE":  "god",
		"FEATURE_CHAT":         "maybe",
	}, nil)
	require.Error(t, err)
	if !errors.Is(err, env.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
	var cerr *env.ConfigError
	require.True(t, errors.As(err, &cerr))
	if diff := cmp.Diff([]string{"BACKEND_URL", "PRINCIPAL_GHOST_EMAIL"}, cerr.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
	if len(cerr.Problems) != 3 {
		t.Fatalf("problems = %v, want 3", cerr.Problems)
	}
}

func TestResolve_RejectsNonHTTPURL(t *testing.T) {
	for _, raw := range []string{"ftp://x", "localhost:8000", "https://"} {
		if _, err := env.Resolve(map[string]string{"BACKEND_URL": raw}, nil); !errors.Is(err, env.ErrConfig) {
			t.Fatalf("%q: want ErrConfig, got %v", raw, err)
		}
	}
}

func TestLoad_SourcePrecedence(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("BACKEND_URL=http://from-dotenv\nAPI_PREFIX=/dot\nRETRY_BASE_MS=7\n"), 0o644))
	js := filepath.Join(dir, "ci.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"API_PREFIX":"/json","BASELINE":7,"STRICT":true}`), 0o644))

	e, err := env.Load(env.Sources{
		DotEnv:    []string{dotenv},
		Environ:   []string{"BACKEND_URL=http://from-process", "API_PREFIX=/proc", "MALFORMED"},
		JSONFiles: []string{js},
	})
	require.NoError(t, err)

	if e.BaseURL() != "http://from-process" {
		t.Fatalf("process env must override dotenv, got %q", e.BaseURL())
	}
	if e.APIPrefix() != "/json" {
		t.Fatalf("json file must override process env, got %q", e.APIPrefix())
	}
	if e.Retry().Base != 7*time.Millisecond {
		t.Fatalf("dotenv-only key lost: %v", e.Retry().Base)
	}
	if diff := cmp.Diff(map[string]string{"API_PREFIX": "/json", "BASELINE": "7", "STRICT": "true"}, e.Vars()); diff != "" {
		t.Fatalf("vars mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSONFiles_MissingFile(t *testing.T) {
	if _, err := env.LoadJSONFiles([]string{filepath.Join(t.TempDir(), "nope.json")}); err == nil {
		t.Fatal("expected error")
	}
}
