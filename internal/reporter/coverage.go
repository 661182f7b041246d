package reporter

import (
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"coach-qa/internal/contract"
)

// CoverageReport counts the documented operations the run exercised.
// Operations are written "METHOD /template".
type CoverageReport struct {
	Total        int                `json:"total"`
	Covered      int                `json:"covered"`
	Percent      float64            `json:"percent"`
	CoveredSet   []string           `json:"covered_set"`
	UncoveredSet []string           `json:"uncovered_set"`
	Resources    []ResourceCoverage `json:"resources"`
}

// ResourceCoverage groups operations by the first segment of their path.
type ResourceCoverage struct {
	Resource string  `json:"resource"`
	Total    int     `json:"total"`
	Covered  int     `json:"covered"`
	Percent  float64 `json:"percent"`
}

// WriteCoverage writes the coverage of c's document as indented JSON.
func WriteCoverage(w io.Writer, c *contract.Coverage) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ComputeCoverage(c.Doc(), c.Covered()))
}

// ComputeCoverage matches covered (method -> path template -> true) against
// every operation of doc. A nil document is fully covered.
func ComputeCoverage(doc *openapi3.T, covered map[string]map[string]bool) CoverageReport {
	rep := CoverageReport{CoveredSet: []string{}, UncoveredSet: []string{}, Resources: []ResourceCoverage{}}
	byResource := map[string]*ResourceCoverage{}
	for _, op := range operations(doc) {
		hit := covered[op.method][op.path]
		if hit {
			rep.CoveredSet = append(rep.CoveredSet, op.String())
		} else {
			rep.UncoveredSet = append(rep.UncoveredSet, op.String())
		}
		rc := byResource[op.resource()]
		if rc == nil {
			rc = &ResourceCoverage{Resource: op.resource()}
			byResource[op.resource()] = rc
		}
		rc.Total++
		if hit {
			rc.Covered++
		}
	}
	slices.Sort(rep.CoveredSet)
	slices.Sort(rep.UncoveredSet)
	rep.Covered = len(rep.CoveredSet)
	rep.Total = rep.Covered + len(rep.UncoveredSet)
	rep.Percent = percent(rep.Covered, rep.Total)

	for _, rc := range byResource {
		rc.Percent = percent(rc.Covered, rc.Total)
		rep.Resources = append(rep.Resources, *rc)
	}
	slices.SortFunc(rep.Resources, func(a, b ResourceCoverage) int { return strings.Compare(a.Resource, b.Resource) })
	return rep
}

type operation struct{ method, path string }

func (o operation) String() string { return o.method + " " + o.path }

func (o operation) resource() string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(o.path, "/"), "/")
	if seg == "" {
		return "/"
	}
	return seg
}

func operations(doc *openapi3.T) []operation {
	if doc == nil || doc.Paths == nil {
		return nil
	}
	var out []operation
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method := range item.Operations() {
			out = append(out, operation{method: strings.ToUpper(method), path: path})
		}
	}
	return out
}

func percent(n, d int) float64 {
	if d == 0 {
		return 100
	}
	return float64(n) * 100 / float64(d)
}
