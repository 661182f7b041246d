package ir

// Step kinds. A Step sets exactly one of its kind fields.
const (
	StepCall     = "call"
	StepSwitch   = "switch"
	StepCapture  = "capture"
	StepSleep    = "sleep"
	StepRegister = "register"
	StepTeardown = "teardown"
)

// Assertion types
const (
	AssertStatusIs         = "status_is"
	AssertStatusIn         = "status_in"
	AssertJSONHas          = "json_has"
	AssertJSONAbsent       = "json_absent"
	AssertJSONEquals       = "json_equals"
	AssertJSONNotEquals    = "json_not_equals"
	AssertJSONIn           = "json_in"
	AssertJSONType         = "json_type"
	AssertJSONGT           = "json_gt"
	AssertJSONGTE          = "json_gte"
	AssertJSONLT           = "json_lt"
	AssertJSONLTE          = "json_lte"
	AssertJSONContains     = "json_contains"
	AssertJSONEndsWith     = "json_ends_with"
	AssertJSONMatches      = "json_matches"
	AssertItemsCount       = "items_count"
	AssertEnvelope         = "envelope_has_pagination"
	AssertEveryItem        = "every_item"
	AssertAnyItem          = "any_item"
	AssertElapsedUnder     = "elapsed_under"
	AssertIsolationNone    = "isolation_sees_none"
	AssertIsolationAtLeast = "isolation_sees_at_least"
)

// TagSkip marks a scenario the runner must not execute.
const TagSkip = "skip"

type Mission struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Principal   string            `json:"principal,omitempty" yaml:"principal,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Isolatable  bool              `json:"isolatable,omitempty" yaml:"isolatable,omitempty"`
	Requires    []string          `json:"requires,omitempty" yaml:"requires,omitempty"`
	Vars        map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
	Scenarios   []Scenario        `json:"scenarios" yaml:"scenarios"`
}

type Scenario struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Principal   string            `json:"principal,omitempty" yaml:"principal,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Requires    []string          `json:"requires,omitempty" yaml:"requires,omitempty"`
	Vars        map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
	TimeoutMs   int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps"`
}

type Step struct {
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Call     *Call       `json:"call,omitempty" yaml:"call,omitempty"`
	Switch   string      `json:"switch,omitempty" yaml:"switch,omitempty"`
	Capture  *Capture    `json:"capture,omitempty" yaml:"capture,omitempty"`
	Sleep    string      `json:"sleep,omitempty" yaml:"sleep,omitempty"` // Go duration, e.g. "30s"
	Register *Register   `json:"register,omitempty" yaml:"register,omitempty"`
	Teardown *FixtureRef `json:"teardown,omitempty" yaml:"teardown,omitempty"`
}

// Kinds lists every kind field that is set; valid steps have exactly one.
func (s Step) Kinds() []string {
	var out []string
	if s.Call != nil {
		out = append(out, StepCall)
	}
	if s.Switch != "" {
		out = append(out, StepSwitch)
	}
	if s.Capture != nil {
		out = append(out, StepCapture)
	}
	if s.Sleep != "" {
		out = append(out, StepSleep)
	}
	if s.Register != nil {
		out = append(out, StepRegister)
	}
	if s.Teardown != nil {
		out = append(out, StepTeardown)
	}
	return out
}

// Kind returns the step kind, or "" when the step is malformed.
func (s Step) Kind() string {
	if k := s.Kinds(); len(k) == 1 {
		return k[0]
	}
	return ""
}

type Call struct {
	Request Request           `json:"request" yaml:"request"`
	Expect  []Assertion       `json:"expect,omitempty" yaml:"expect,omitempty"`
	Capture map[string]string `json:"capture,omitempty" yaml:"capture,omitempty"` // label -> dotted path
	Fixture *FixtureSpec      `json:"fixture,omitempty" yaml:"fixture,omitempty"`
}

type Request struct {
	Method         string            `json:"method" yaml:"method"`
	Path           string            `json:"path" yaml:"path"`
	Query          map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body           any               `json:"body,omitempty" yaml:"body,omitempty"`
	TimeoutMs      int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty" yaml:"idempotency_key,omitempty"`
}

type Assertion struct {
	Type      string      `json:"type" yaml:"type"`
	Path      string      `json:"path,omitempty" yaml:"path,omitempty"`
	Value     any         `json:"value,omitempty" yaml:"value,omitempty"`
	Values    []any       `json:"values,omitempty" yaml:"values,omitempty"`
	Op        string      `json:"op,omitempty" yaml:"op,omitempty"`
	Kind      string      `json:"kind,omitempty" yaml:"kind,omitempty"`
	Ms        int         `json:"ms,omitempty" yaml:"ms,omitempty"`
	Where     []Assertion `json:"where,omitempty" yaml:"where,omitempty"`
	Soft      bool        `json:"soft,omitempty" yaml:"soft,omitempty"`
	Tolerance float64     `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

type Capture struct {
	Label string `json:"label" yaml:"label"`
	Path  string `json:"path" yaml:"path"`
}

// FixtureSpec registers the entity a call created. IDPath is read from the
// response; Teardown overrides the standard recipe for Kind.
type FixtureSpec struct {
	Kind     string  `json:"kind" yaml:"kind"`
	IDPath   string  `json:"id_path" yaml:"id_path"`
	Teardown *Recipe `json:"teardown,omitempty" yaml:"teardown,omitempty"`
}

// Recipe describes how to delete a fixture. Path may contain {id}.
type Recipe struct {
	Method    string `json:"method" yaml:"method"`
	Path      string `json:"path" yaml:"path"`
	Body      any    `json:"body,omitempty" yaml:"body,omitempty"`
	Principal string `json:"principal,omitempty" yaml:"principal,omitempty"`
}

type Register struct {
	Kind     string  `json:"kind" yaml:"kind"`
	ID       string  `json:"id" yaml:"id"`
	Teardown *Recipe `json:"teardown,omitempty" yaml:"teardown,omitempty"`
}

type FixtureRef struct {
	Kind string `json:"kind" yaml:"kind"`
	ID   string `json:"id" yaml:"id"`
}
