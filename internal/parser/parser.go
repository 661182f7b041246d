package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coach-qa/internal/assert"
	"coach-qa/internal/fixture"
	"coach-qa/internal/inspect"
	"coach-qa/internal/ir"
)

var ErrValidation = errors.New("validation error")

// MaxSleep bounds a sleep step.
const MaxSleep = 30 * time.Second

var methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

type Parser struct{}

func New() *Parser { return &Parser{} }

// ParseBytes parses one mission document (YAML or JSON) and validates it.
func (p *Parser) ParseBytes(b []byte) (*ir.Mission, error) {
	var m ir.Mission

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true) // fail on unknown fields

	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	normalize(&m)
	if err := validateMission(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func normalize(m *ir.Mission) {
	for i := range m.Scenarios {
		for j := range m.Scenarios[i].Steps {
			st := &m.Scenarios[i].Steps[j]
			if st.Call != nil {
				st.Call.Request.Method = strings.ToUpper(st.Call.Request.Method)
				if st.Call.Fixture != nil && st.Call.Fixture.Teardown != nil {
					st.Call.Fixture.Teardown.Method = strings.ToUpper(st.Call.Fixture.Teardown.Method)
				}
			}
			if st.Register != nil && st.Register.Teardown != nil {
				st.Register.Teardown.Method = strings.ToUpper(st.Register.Teardown.Method)
			}
		}
	}
}

// --- validation helpers ---

func validateMission(m *ir.Mission) error {
	if m.Name == "" {
		return wrapValidation("mission.name must not be empty")
	}
	if len(m.Scenarios) == 0 {
		return wrapValidation(fmt.Sprintf("mission %q: scenarios must not be empty", m.Name))
	}
	if err := validateTags(m.Tags, "mission.tags"); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := range m.Scenarios {
		sc := &m.Scenarios[i]
		if err := validateScenario(sc, i); err != nil {
			return err
		}
		if seen[sc.Name] {
			return wrapValidation(fmt.Sprintf("mission %q: duplicate scenario name %q", m.Name, sc.Name))
		}
		seen[sc.Name] = true
	}
	return nil
}

func validateScenario(sc *ir.Scenario, idx int) error {
	if sc.Name == "" {
		return wrapValidation(fmt.Sprintf("scenario[%d].name must not be empty", idx))
	}
	if len(sc.Steps) == 0 {
		return wrapValidation(fmt.Sprintf("scenario[%d].steps must not be empty", idx))
	}
	if sc.TimeoutMs < 0 {
		return wrapValidation(fmt.Sprintf("scenario[%d].timeout_ms must be >= 0", idx))
	}
	if err := validateTags(sc.Tags, fmt.Sprintf("scenario[%d].tags", idx)); err != nil {
		return err
	}
	for j := range sc.Steps {
		if err := validateStep(&sc.Steps[j], fmt.Sprintf("scenario[%d].step[%d]", idx, j)); err != nil {
			return err
		}
	}
	return nil
}

func validateTags(tags []string, where string) error {
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			return wrapValidation(where + " must not contain empty tags")
		}
	}
	return nil
}

func validateStep(st *ir.Step, at string) error {
	kinds := st.Kinds()
	if len(kinds) != 1 {
		return wrapValidation(fmt.Sprintf("%s must set exactly one of call, switch, capture, sleep, register, teardown (got %v)", at, kinds))
	}
	switch kinds[0] {
	case ir.StepCall:
		return validateCall(st.Call, at+".call")
	case ir.StepCapture:
		if st.Capture.Label == "" {
			return wrapValidation(at + ".capture.label must not be empty")
		}
		return validatePath(st.Capture.Path, at+".capture.path")
	case ir.StepSleep:
		d, err := time.ParseDuration(st.Sleep)
		if err != nil {
			return wrapValidation(fmt.Sprintf("%s.sleep: %v", at, err))
		}
		if d <= 0 || d > MaxSleep {
			return wrapValidation(fmt.Sprintf("%s.sleep %s must be in (0, %s]", at, d, MaxSleep))
		}
	case ir.StepRegister:
		if st.Register.Kind == "" || st.Register.ID == "" {
			return wrapValidation(at + ".register needs kind and id")
		}
		return validateRecipe(st.Register.Kind, st.Register.Teardown, at+".register")
	case ir.StepTeardown:
		if st.Teardown.Kind == "" || st.Teardown.ID == "" {
			return wrapValidation(at + ".teardown needs kind and id")
		}
	}
	return nil
}

func validateCall(c *ir.Call, at string) error {
	r := c.Request
	if r.Method == "" {
		return wrapValidation(at + ".request.method must not be empty")
	}
	if !slices.Contains(methods, r.Method) {
		return wrapValidation(fmt.Sprintf("%s.request.method %q is not supported", at, r.Method))
	}
	if !strings.HasPrefix(r.Path, "/") {
		return wrapValidation(fmt.Sprintf("%s.request.path %q must begin with /", at, r.Path))
	}
	if r.TimeoutMs < 0 {
		return wrapValidation(at + ".request.timeout_ms must be >= 0")
	}
	for i, a := range c.Expect {
		if err := assert.Validate(a); err != nil {
			return wrapValidation(fmt.Sprintf("%s.expect[%d]: %v", at, i, err))
		}
	}
	for label, path := range c.Capture {
		if label == "" {
			return wrapValidation(at + ".capture has an empty label")
		}
		if err := validatePath(path, fmt.Sprintf("%s.capture.%s", at, label)); err != nil {
			return err
		}
	}
	if f := c.Fixture; f != nil {
		if f.Kind == "" {
			return wrapValidation(at + ".fixture.kind must not be empty")
		}
		if err := validatePath(f.IDPath, at+".fixture.id_path"); err != nil {
			return err
		}
		return validateRecipe(f.Kind, f.Teardown, at+".fixture")
	}
	return nil
}

func validateRecipe(kind string, r *ir.Recipe, at string) error {
	if r == nil {
		if _, ok := fixture.Standard(kind); !ok {
			return wrapValidation(fmt.Sprintf("%s: kind %q has no standard teardown; declare one", at, kind))
		}
		return nil
	}
	if r.Method != "" && !slices.Contains(methods, r.Method) {
		return wrapValidation(fmt.Sprintf("%s.teardown.method %q is not supported", at, r.Method))
	}
	if !strings.HasPrefix(r.Path, "/") {
		return wrapValidation(fmt.Sprintf("%s.teardown.path %q must begin with /", at, r.Path))
	}
	return nil
}

func validatePath(p, at string) error {
	if p == "" {
		return wrapValidation(at + " must not be empty")
	}
	if _, err := inspect.ParsePath(p); err != nil {
		return wrapValidation(fmt.Sprintf("%s: %v", at, err))
	}
	return nil
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
