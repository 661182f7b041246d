package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"coach-qa/internal/fakesut"
	"coach-qa/internal/reporter"
)

func backend(t *testing.T) []string {
	t.Helper()
	srv := httptest.NewServer(fakesut.New(fakesut.Options{}).Handler())
	t.Cleanup(srv.Close)
	return []string{
		"BACKEND_URL=" + srv.URL,
		"RETRY_BASE_MS=1",
		"PRINCIPAL_SUPER_ADMIN_EMAIL=contact.artboost@gmail.com",
	}
}

func readDoc(t *testing.T, dir string) reporter.Document {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	var doc reporter.Document
	require.NoError(t, json.Unmarshal(b, &doc))
	return doc
}

func TestRunPassingMissions(t *testing.T) {
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--mission", "health,credits", "--out", out}, &stdout, &stderr, backend(t))
	require.Equal(t, ExitPassed, code, "stderr: %s\nstdout: %s", stderr.String(), stdout.String())

	doc := readDoc(t, out)
	require.Len(t, doc.Missions, 2)
	require.Zero(t, doc.Summary.Failed)
	require.Positive(t, doc.Summary.Passed)
	require.FileExists(t, filepath.Join(out, "junit.xml"))
	require.NoFileExists(t, filepath.Join(out, "coverage.json"))
	require.Contains(t, stdout.String(), "health reports a connected database")
}

func TestRunFailingScenarioExitsOne(t *testing.T) {
	dir := t.TempDir()
	mission := `name: broken
scenarios:
  - name: wrong status
    steps:
      - call:
          request: {method: GET, path: /health}
          expect:
            - {type: status_is, value: 418}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(mission), 0o644))
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--missions", dir, "--out", out, "--junit=false"}, &stdout, &stderr, backend(t))
	require.Equal(t, ExitFailed, code)
	require.Empty(t, stderr.String())

	doc := readDoc(t, out)
	require.Equal(t, 1, doc.Summary.Failed)
	require.Equal(t, "assertion:status_is", doc.Missions[0].Scenarios[0].Reason)
	require.NoFileExists(t, filepath.Join(out, "junit.xml"))
}

func TestRunConfigErrorWritesStartupReport(t *testing.T) {
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--out", out}, &stdout, &stderr, nil)
	require.Equal(t, ExitConfig, code)
	require.Contains(t, stderr.String(), "BACKEND_URL")

	doc := readDoc(t, out)
	require.Len(t, doc.Missions, 1)
	require.Equal(t, reporter.StartupMission, doc.Missions[0].Name)
	require.Equal(t, reporter.StartupReason, doc.Missions[0].Scenarios[0].Reason)
}

func TestRunUnknownMissionIsConfigError(t *testing.T) {
	out := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--mission", "nope", "--out", out}, &stdout, &stderr, backend(t))
	require.Equal(t, ExitConfig, code)
	require.Contains(t, stderr.String(), `"nope"`)
}

func TestRunBadLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--log-level", "loud"}, &stdout, &stderr, nil)
	require.Equal(t, ExitConfig, code)
	require.Contains(t, stderr.String(), "loud")
}

func TestListBuiltinMissions(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute([]string{"list", "--include-tags", "smoke"}, &stdout, &stderr, nil)
	require.Equal(t, ExitPassed, code, stderr.String())
	got := stdout.String()
	for _, want := range []string{"health", "media link round trip", "partner sees no reservations"} {
		require.True(t, strings.Contains(got, want), "missing %q in:\n%s", want, got)
	}
	require.NotContains(t, got, "campaign-scheduler")
}
