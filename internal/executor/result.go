package executor

import (
	"net/http"
	"time"

	"coach-qa/internal/assert"
	"coach-qa/internal/fixture"
	"coach-qa/internal/httpclient"
)

// ---- Results model ----

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Failure and skip reasons.
const (
	ReasonTransport        = "transport"
	ReasonProtocol         = "protocol"
	ReasonPrecondition     = "precondition"
	ReasonScenarioTimeout  = "scenario-timeout"
	ReasonCancelled        = "cancelled"
	ReasonFailFast         = "fail-fast"
	ReasonTaggedSkip       = "tagged-skip"
	ReasonAssertionPrefix  = "assertion:"
	ReasonMissingPrincipal = "missing-principal:"
	ReasonFeatureDisabled  = "feature-disabled:"
)

type RunResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Missions   []MissionResult
}

type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (r *RunResult) Summary() Summary {
	var s Summary
	for _, m := range r.Missions {
		for _, sc := range m.Scenarios {
			switch sc.Status {
			case StatusPass:
				s.Passed++
			case StatusFail:
				s.Failed++
			case StatusSkip:
				s.Skipped++
			}
		}
	}
	return s
}

// Passed is true when no scenario failed.
func (r *RunResult) Passed() bool { return r.Summary().Failed == 0 }

type MissionResult struct {
	Name      string
	Scenarios []ScenarioResult
	Duration  time.Duration
}

type ScenarioResult struct {
	Mission   string
	Name      string
	Principal string
	Tags      []string
	Status    Status
	Reason    string
	Duration  time.Duration
	Steps     []StepResult
	Failure   *Failure

	// SoftFailures are diagnostics of failed soft assertions.
	SoftFailures []string

	Fixtures         int
	Teardown         []fixture.Attempt
	TeardownWarnings []string
}

type StepResult struct {
	Index      int
	Name       string
	Kind       string
	Principal  string
	Passed     bool
	Diagnostic string
	Duration   time.Duration

	HTTPStatus int
	Attempts   int
	Assertions []assert.Result
}

// Failure describes the step that ended a scenario.
type Failure struct {
	StepIndex  int
	Assertion  string
	Diagnostic string
	Request    *httpclient.Exchange
	Response   *Snapshot
}

// Snapshot is the part of a response kept for reports.
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	Elapsed  time.Duration
	Attempts int
}

func snapshot(r *httpclient.Response) *Snapshot {
	if r == nil {
		return nil
	}
	return &Snapshot{Status: r.Status, Header: r.Header, Body: r.BodyRaw, Elapsed: r.Elapsed, Attempts: r.Attempts}
}
