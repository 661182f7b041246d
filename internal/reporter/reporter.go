// Package reporter renders a run: the stable JSON document, a terminal
// summary, JUnit XML and endpoint coverage.
package reporter

import (
	"encoding/json"
	"io"
	"time"

	"coach-qa/internal/executor"
)

// -------- Document --------

type Document struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Summary    executor.Summary `json:"summary"`
	Missions   []Mission        `json:"missions"`
}

type Mission struct {
	Name      string     `json:"name"`
	Scenarios []Scenario `json:"scenarios"`
}

type Scenario struct {
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	Reason           string   `json:"reason,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
	Principal        string   `json:"principal,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Steps            []Step   `json:"steps,omitempty"`
	Failure          *Failure `json:"failure,omitempty"`
	SoftFailures     []string `json:"soft_failures,omitempty"`
	Fixtures         int      `json:"fixtures"`
	TeardownWarnings []string `json:"teardown_warnings"`
}

type Step struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Kind       string `json:"kind"`
	Principal  string `json:"principal,omitempty"`
	Passed     bool   `json:"passed"`
	DurationMs int64  `json:"duration_ms"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type Failure struct {
	StepIndex       int              `json:"step_index"`
	Assertion       string           `json:"assertion,omitempty"`
	Diagnostic      string           `json:"diagnostic,omitempty"`
	RequestExcerpt  *RequestExcerpt  `json:"request_excerpt,omitempty"`
	ResponseExcerpt *ResponseExcerpt `json:"response_excerpt,omitempty"`
}

// Build converts a run into its report document.
func Build(res *executor.RunResult) *Document {
	doc := &Document{
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
		Summary:    res.Summary(),
		Missions:   make([]Mission, 0, len(res.Missions)),
	}
	for _, m := range res.Missions {
		dm := Mission{Name: m.Name, Scenarios: make([]Scenario, 0, len(m.Scenarios))}
		for _, sc := range m.Scenarios {
			dm.Scenarios = append(dm.Scenarios, scenario(sc))
		}
		doc.Missions = append(doc.Missions, dm)
	}
	return doc
}

func scenario(sc executor.ScenarioResult) Scenario {
	out := Scenario{
		Name:             sc.Name,
		Status:           string(sc.Status),
		Reason:           sc.Reason,
		DurationMs:       sc.Duration.Milliseconds(),
		Principal:        sc.Principal,
		Tags:             sc.Tags,
		SoftFailures:     sc.SoftFailures,
		Fixtures:         sc.Fixtures,
		TeardownWarnings: sc.TeardownWarnings,
	}
	if out.TeardownWarnings == nil {
		out.TeardownWarnings = []string{}
	}
	for _, st := range sc.Steps {
		out.Steps = append(out.Steps, Step{
			Index:      st.Index,
			Name:       st.Name,
			Kind:       st.Kind,
			Principal:  st.Principal,
			Passed:     st.Passed,
			DurationMs: st.Duration.Milliseconds(),
			HTTPStatus: st.HTTPStatus,
			Attempts:   st.Attempts,
			Diagnostic: st.Diagnostic,
		})
	}
	if f := sc.Failure; f != nil {
		out.Failure = &Failure{
			StepIndex:       f.StepIndex,
			Assertion:       f.Assertion,
			Diagnostic:      f.Diagnostic,
			RequestExcerpt:  requestExcerpt(f.Request),
			ResponseExcerpt: responseExcerpt(f.Response),
		}
	}
	return out
}

// Startup names the pseudo mission reporting a configuration error.
const (
	StartupMission  = "startup"
	StartupScenario = "configuration"
	StartupReason   = "configuration"
)

// StartupError is the document for a run aborted before any scenario: one
// failed scenario carrying err.
func StartupError(err error, started, finished time.Time) *Document {
	return &Document{
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Summary:    executor.Summary{Failed: 1},
		Missions: []Mission{{
			Name: StartupMission,
			Scenarios: []Scenario{{
				Name:             StartupScenario,
				Status:           string(executor.StatusFail),
				Reason:           StartupReason,
				Failure:          &Failure{Diagnostic: err.Error()},
				TeardownWarnings: []string{},
			}},
		}},
	}
}

// Passed is true when no scenario failed.
func (d *Document) Passed() bool { return d.Summary.Failed == 0 }

// -------- JSON --------

func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
