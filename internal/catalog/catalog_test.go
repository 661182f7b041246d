package catalog_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"coach-qa/internal/catalog"
	"coach-qa/internal/ir"
)

const missionA = `
name: alpha
principal: super_admin
tags: [core]
requires: [scheduler]
scenarios:
  - name: inherits
    tags: [smoke, core]
    steps: [{sleep: 1s}]
  - name: overrides
    principal: partner
    tags: [slow]
    steps: [{sleep: 1s}]
`

const missionB = `
name: beta
scenarios:
  - name: only
    steps: [{sleep: 1s}]
`

func TestLoadFS_InheritanceAndOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"a/alpha.yaml": {Data: []byte(missionA)},
		"b/beta.yml":   {Data: []byte(missionB)},
		"README.md":    {Data: []byte("not a mission")},
	}
	c, err := catalog.LoadFS(fsys, ".")
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	ms := c.Missions()
	if len(ms) != 2 || ms[0].Name != "alpha" || ms[1].Name != "beta" {
		t.Fatalf("missions = %v", ms)
	}
	got := []ir.Scenario{ms[0].Scenarios[0], ms[0].Scenarios[1]}
	if got[0].Principal != "super_admin" || got[1].Principal != "partner" {
		t.Fatalf("principals = %q, %q", got[0].Principal, got[1].Principal)
	}
	if diff := cmp.Diff([]string{"core", "smoke"}, got[0].Tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"core", "slow"}, got[1].Tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"scheduler"}, got[1].Requires); diff != "" {
		t.Fatalf("requires (-want +got):\n%s", diff)
	}
}

func TestLoadFS_DuplicateMission(t *testing.T) {
	fsys := fstest.MapFS{
		"one.yaml": {Data: []byte(missionB)},
		"two.yaml": {Data: []byte(missionB)},
	}
	if _, err := catalog.LoadFS(fsys, "."); !errors.Is(err, catalog.ErrDuplicateMission) {
		t.Fatalf("expected ErrDuplicateMission, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	fsys := fstest.MapFS{
		"alpha.yaml": {Data: []byte(missionA)},
		"beta.yaml":  {Data: []byte(missionB)},
	}
	c, err := catalog.LoadFS(fsys, ".")
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}

	sel, err := c.Select(catalog.Selector{ExcludeTags: []string{"SLOW"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel) != 2 || len(sel[0].Scenarios) != 1 {
		t.Fatalf("exclude slow: got %d missions, alpha has %d scenarios", len(sel), len(sel[0].Scenarios))
	}

	sel, _ = c.Select(catalog.Selector{IncludeTags: []string{"smoke"}})
	if len(sel) != 1 || sel[0].Name != "alpha" {
		t.Fatalf("include smoke: got %v", sel)
	}

	sel, _ = c.Select(catalog.Selector{Missions: []string{"beta"}})
	if len(sel) != 1 || sel[0].Name != "beta" {
		t.Fatalf("by name: got %v", sel)
	}

	if _, err := c.Select(catalog.Selector{Missions: []string{"gamma"}}); !errors.Is(err, catalog.ErrUnknownMission) {
		t.Fatalf("expected ErrUnknownMission, got %v", err)
	}
	// Selection never mutates the catalog.
	if m, _ := c.Mission("alpha"); len(m.Scenarios) != 2 {
		t.Fatalf("catalog mutated: alpha has %d scenarios", len(m.Scenarios))
	}
}
