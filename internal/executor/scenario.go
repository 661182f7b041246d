package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"coach-qa/internal/assert"
	"coach-qa/internal/fixture"
	"coach-qa/internal/httpclient"
	"coach-qa/internal/identity"
	"coach-qa/internal/inspect"
	"coach-qa/internal/ir"
	"coach-qa/internal/parser"
	"coach-qa/pkg/logging"
)

// state is the scenario context: current principal, last response, captures,
// fixture registry and step trace.
type state struct {
	r        *Runner
	mission  string
	scenario string
	ident    *identity.Context
	scope    *scope
	registry *fixture.Registry
	last     *httpclient.Response
	steps    []StepResult
	soft     []string
}

// stepFail ends a scenario.
type stepFail struct {
	Failure
	reason string
}

func (st *state) failAt(idx int, reason, assertion, diag string) *stepFail {
	f := &stepFail{reason: reason, Failure: Failure{StepIndex: idx, Assertion: assertion, Diagnostic: diag}}
	if st.last != nil {
		req := st.last.Request
		f.Request = &req
		f.Response = snapshot(st.last)
	}
	return f
}

func (st *state) run(ctx context.Context, steps []ir.Step) *stepFail {
	for i, step := range steps {
		start := time.Now()
		sr := StepResult{Index: i, Name: step.Name, Kind: step.Kind(), Principal: st.ident.Current().Name}
		var fail *stepFail
		if ctx.Err() != nil {
			fail = st.failAt(i, ReasonCancelled, "", context.Cause(ctx).Error())
		} else {
			fail = st.exec(ctx, i, step, &sr)
		}
		sr.Duration = time.Since(start)
		sr.Passed = fail == nil
		if fail != nil && sr.Diagnostic == "" {
			sr.Diagnostic = fail.Diagnostic
		}
		st.steps = append(st.steps, sr)
		logging.Debug("executor", "%s / %s step %d %s as %s: passed=%t %s", st.mission, st.scenario, i, sr.Kind, sr.Principal, sr.Passed, sr.Diagnostic)
		if fail != nil {
			return fail
		}
	}
	return nil
}

func (st *state) exec(ctx context.Context, i int, step ir.Step, sr *StepResult) *stepFail {
	switch step.Kind() {
	case ir.StepCall:
		return st.call(ctx, i, step.Call, sr)
	case ir.StepSwitch:
		name := st.scope.interpolate(step.Switch)
		if err := st.ident.Switch(name); err != nil {
			return st.failAt(i, ReasonPrecondition, "", "switch: "+err.Error())
		}
		sr.Principal = name
		return nil
	case ir.StepCapture:
		return st.capture(i, map[string]string{step.Capture.Label: step.Capture.Path})
	case ir.StepSleep:
		d, err := time.ParseDuration(step.Sleep)
		if err != nil || d <= 0 || d > parser.MaxSleep {
			return st.failAt(i, ReasonPrecondition, "", fmt.Sprintf("sleep %q must be a duration in (0, %s]", step.Sleep, parser.MaxSleep))
		}
		if err := st.r.sleep(ctx, d); err != nil {
			return st.failAt(i, ReasonCancelled, "", "sleep interrupted: "+err.Error())
		}
		return nil
	case ir.StepRegister:
		reg := step.Register
		kind, id := st.scope.interpolate(reg.Kind), st.scope.interpolate(reg.ID)
		if u := findUnresolved(id); len(u) > 0 {
			return st.failAt(i, ReasonPrecondition, "", "register: unresolved "+strings.Join(u, ", "))
		}
		if err := st.register(kind, id, reg.Teardown); err != nil {
			return st.failAt(i, ReasonPrecondition, "", err.Error())
		}
		return nil
	case ir.StepTeardown:
		kind, id := st.scope.interpolate(step.Teardown.Kind), st.scope.interpolate(step.Teardown.ID)
		a, err := st.registry.Delete(context.WithoutCancel(ctx), st.r.client, st.r.dir.Lookup, kind, id)
		switch {
		case err != nil && a.Kind == "":
			sr.Diagnostic = err.Error()
		case err != nil:
			sr.Diagnostic = "teardown warning: " + err.Error()
		default:
			sr.HTTPStatus = a.Status
		}
		// Teardown problems never fail the scenario.
		return nil
	}
	return st.failAt(i, ReasonPrecondition, "", fmt.Sprintf("step must set exactly one kind, got %v", step.Kinds()))
}

// ---- Call ----

func (st *state) call(ctx context.Context, i int, c *ir.Call, sr *StepResult) *stepFail {
	req := httpclient.Request{
		Method:         c.Request.Method,
		Path:           st.scope.interpolate(c.Request.Path),
		Query:          st.scope.expandMap(c.Request.Query),
		Headers:        st.scope.expandMap(c.Request.Headers),
		Body:           st.scope.walk(c.Request.Body),
		Timeout:        time.Duration(c.Request.TimeoutMs) * time.Millisecond,
		IdempotencyKey: st.scope.interpolate(c.Request.IdempotencyKey),
	}
	if u := unresolvedIn(req.Path, req.Query, req.Headers, req.Body); len(u) > 0 {
		return st.failAt(i, ReasonPrecondition, "", "unresolved variables: "+strings.Join(u, ", "))
	}

	p := st.ident.Current()
	resp, err := st.r.client.Do(ctx, p, req)
	if err != nil {
		var te *httpclient.TransportError
		if errors.As(err, &te) {
			sr.Attempts = te.Attempts
			return &stepFail{reason: ReasonTransport, Failure: Failure{StepIndex: i, Diagnostic: err.Error(), Request: &te.Request}}
		}
		return st.failAt(i, ReasonPrecondition, "", err.Error())
	}
	st.last = resp
	sr.HTTPStatus, sr.Attempts = resp.Status, resp.Attempts
	st.cover(resp, req.Path)

	if fx := c.Fixture; fx != nil && resp.Status >= 200 && resp.Status < 300 {
		v, err := inspect.Get(resp.BodyJSON, fx.IDPath)
		if err != nil || inspect.IsAbsent(v) || inspect.IsUndecoded(v) {
			return st.failAt(i, ReasonPrecondition, "", fmt.Sprintf("fixture %s: id path %q not found in response", fx.Kind, fx.IDPath))
		}
		if err := st.register(fx.Kind, stringify(v), fx.Teardown); err != nil {
			return st.failAt(i, ReasonPrecondition, "", err.Error())
		}
	}

	subject := assert.FromResponse(resp)
	var fail *stepFail
	for _, a := range c.Expect {
		check, err := assert.Compile(st.scope.assertion(a))
		if err != nil {
			if fail == nil {
				fail = st.failAt(i, ReasonPrecondition, a.Type, err.Error())
			}
			continue
		}
		res := check.Eval(subject)
		sr.Assertions = append(sr.Assertions, res)
		if res.Passed {
			continue
		}
		if res.Soft {
			st.soft = append(st.soft, fmt.Sprintf("step %d: %s", i, res.Diagnostic))
			continue
		}
		if fail != nil {
			continue
		}
		reason := ReasonAssertionPrefix + res.Name
		if errors.Is(res.Err, assert.ErrProtocol) {
			reason = ReasonProtocol
		}
		fail = st.failAt(i, reason, res.Name, res.Diagnostic)
	}
	if fail != nil {
		return fail
	}
	return st.capture(i, c.Capture)
}

// cover records the call in the coverage report under both its full URL path
// and its path relative to the API prefix.
func (st *state) cover(resp *httpclient.Response, rel string) {
	if st.r.coverage == nil {
		return
	}
	var candidates []string
	if u, err := url.Parse(resp.Request.URL); err == nil {
		candidates = append(candidates, u.Path)
	}
	candidates = append(candidates, rel)
	st.r.coverage.Record(resp.Request.Method, candidates...)
}

func (st *state) register(kind, id string, t *ir.Recipe) error {
	var rec *fixture.Recipe
	if t != nil {
		rec = &fixture.Recipe{
			Method:    t.Method,
			Path:      st.scope.interpolate(t.Path),
			Body:      st.scope.walk(t.Body),
			Principal: t.Principal,
		}
		if rec.Principal != "" && !st.r.known(rec.Principal) {
			return fmt.Errorf("fixture %s:%s: teardown principal %q is not configured", kind, id, rec.Principal)
		}
	}
	return st.registry.Register(kind, id, rec, st.ident.Current())
}

// capture binds labels from the last response, in label order.
func (st *state) capture(i int, labels map[string]string) *stepFail {
	if len(labels) == 0 {
		return nil
	}
	if st.last == nil {
		return st.failAt(i, ReasonPrecondition, "", "capture: no response yet")
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, label := range keys {
		v, err := inspect.Get(st.last.BodyJSON, labels[label])
		if err != nil || inspect.IsAbsent(v) || inspect.IsUndecoded(v) {
			return st.failAt(i, ReasonPrecondition, "", fmt.Sprintf("capture %s: path %q not found", label, labels[label]))
		}
		st.scope.set(label, stringify(v))
	}
	return nil
}

// unresolvedIn reports ${VAR} references left in any string of vs.
func unresolvedIn(vs ...any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			out = append(out, findUnresolved(x)...)
		case map[string]string:
			for _, s := range x {
				out = append(out, findUnresolved(s)...)
			}
		case map[string]any:
			for _, e := range x {
				walk(e)
			}
		case []any:
			for _, e := range x {
				walk(e)
			}
		}
	}
	for _, v := range vs {
		walk(v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
