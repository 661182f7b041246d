// Package catalog discovers mission documents and selects the scenarios a
// run will execute.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"coach-qa/internal/ir"
	"coach-qa/internal/parser"
	"coach-qa/pkg/logging"
)

var (
	ErrDuplicateMission = errors.New("duplicate mission name")
	ErrUnknownMission   = errors.New("unknown mission")
)

// Catalog is an ordered set of missions with scenario defaults applied.
type Catalog struct {
	missions []*ir.Mission
	byName   map[string]*ir.Mission
}

// New builds a catalog. Scenarios inherit their mission's principal, tags
// and requirements unless they set their own principal.
func New(missions ...*ir.Mission) (*Catalog, error) {
	c := &Catalog{byName: map[string]*ir.Mission{}}
	for _, m := range missions {
		if _, dup := c.byName[m.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMission, m.Name)
		}
		m = inherit(m)
		c.missions = append(c.missions, m)
		c.byName[m.Name] = m
	}
	return c, nil
}

func inherit(m *ir.Mission) *ir.Mission {
	out := *m
	out.Scenarios = make([]ir.Scenario, len(m.Scenarios))
	for i, sc := range m.Scenarios {
		if sc.Principal == "" {
			sc.Principal = m.Principal
		}
		sc.Tags = union(m.Tags, sc.Tags)
		sc.Requires = union(m.Requires, sc.Requires)
		out.Scenarios[i] = sc
	}
	return &out
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range slices.Concat(a, b) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// LoadFS parses every *.yaml, *.yml and *.json file under root.
func LoadFS(fsys fs.FS, root string) (*Catalog, error) {
	p := parser.New()
	var missions []*ir.Mission
	err := fs.WalkDir(fsys, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isMissionFile(name) {
			return nil
		}
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		m, err := p.ParseBytes(b)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logging.Debug("catalog", "loaded mission %s from %s (%d scenarios)", m.Name, name, len(m.Scenarios))
		missions = append(missions, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load missions: %w", err)
	}
	return New(missions...)
}

// LoadDir loads missions from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mission path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mission path %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir), ".")
}

func isMissionFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func (c *Catalog) Missions() []*ir.Mission { return slices.Clone(c.missions) }

func (c *Catalog) Mission(name string) (*ir.Mission, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// ---- Selection ----

// Selector narrows a catalog. Empty fields select everything. Tag matching
// is case-insensitive with OR semantics on each list.
type Selector struct {
	Missions    []string
	IncludeTags []string
	ExcludeTags []string
}

// Select returns the chosen missions in catalog order. Missions left with
// no scenarios are dropped.
func (c *Catalog) Select(sel Selector) ([]*ir.Mission, error) {
	for _, n := range sel.Missions {
		if _, ok := c.byName[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMission, n)
		}
	}
	var out []*ir.Mission
	for _, m := range c.missions {
		if len(sel.Missions) > 0 && !slices.Contains(sel.Missions, m.Name) {
			continue
		}
		sc := FilterByTags(m.Scenarios, sel.IncludeTags, sel.ExcludeTags)
		if len(sc) == 0 {
			continue
		}
		cp := *m
		cp.Scenarios = sc
		out = append(out, &cp)
	}
	return out, nil
}

func FilterByTags(in []ir.Scenario, include, exclude []string) []ir.Scenario {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}
	toSet := func(ss []string) map[string]bool {
		m := map[string]bool{}
		for _, s := range ss {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	inc, exc := toSet(include), toSet(exclude)
	hasAny := func(tags []string, m map[string]bool) bool {
		for _, t := range tags {
			if m[strings.ToLower(t)] {
				return true
			}
		}
		return false
	}
	out := make([]ir.Scenario, 0, len(in))
	for _, sc := range in {
		if len(inc) > 0 && !hasAny(sc.Tags, inc) {
			continue
		}
		if len(exc) > 0 && hasAny(sc.Tags, exc) {
			continue
		}
		out = append(out, sc)
	}
	return out
}
