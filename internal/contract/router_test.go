package contract_test

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"coach-qa/internal/contract"
)

const doc = `
openapi: 3.0.3
info: {title: coaching, version: "1"}
servers:
  - url: https://backend.example.com/api
paths:
  /reservations:
    get: { responses: { "200": { description: ok } } }
  /media/{slug}:
    parameters:
      - { name: slug, in: path, required: true, schema: { type: string } }
    get: { responses: { "200": { description: ok } } }
    delete: { responses: { "200": { description: ok } } }
`

func TestMatch_TemplatedPath(t *testing.T) {
	r, err := contract.LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	path, method, ok := r.Match(http.MethodGet, "/api/media/test-1", "/media/test-1")
	if !ok || path != "/media/{slug}" || method != http.MethodGet {
		t.Fatalf("Match = %q %q %v", path, method, ok)
	}
	if _, _, ok := r.Match(http.MethodPost, "/reservations"); ok {
		t.Fatalf("undocumented method matched")
	}
}

func TestCoverage_Record(t *testing.T) {
	r, err := contract.LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	c := contract.NewCoverage(r)
	c.Record(http.MethodGet, "/reservations?page=2")
	c.Record(http.MethodDelete, "/media/abc")
	c.Record(http.MethodGet, "/unknown")

	want := map[string]map[string]bool{
		"GET":    {"/reservations": true},
		"DELETE": {"/media/{slug}": true},
	}
	if diff := cmp.Diff(want, c.Covered()); diff != "" {
		t.Fatalf("covered (-want +got):\n%s", diff)
	}
}

func TestLoad_InvalidDocument(t *testing.T) {
	if _, err := contract.LoadFromBytes([]byte("openapi: 3.0.3\npaths: 12\n")); err == nil {
		t.Fatal("expected error for invalid document")
	}
}
