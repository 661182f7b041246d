// Package executor runs missions: each scenario's steps in order against one
// scenario context, followed by an unconditional fixture teardown.
package executor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"coach-qa/internal/contract"
	"coach-qa/internal/env"
	"coach-qa/internal/fixture"
	"coach-qa/internal/httpclient"
	"coach-qa/internal/identity"
	"coach-qa/internal/ir"
	"coach-qa/pkg/logging"
)

// Slack is added to the summed step budgets of a scenario.
const Slack = 10 * time.Second

var errScenarioTimeout = errors.New("scenario budget exceeded")

type Runner struct {
	env      *env.Environment
	client   *httpclient.Client
	dir      *identity.Directory
	parallel int
	failFast bool
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
	coverage *contract.Coverage
}

func New(e *env.Environment, c *httpclient.Client) *Runner {
	return &Runner{
		env:      e,
		client:   c,
		dir:      e.Directory(),
		parallel: 1,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// WithParallel lets up to n isolatable missions run at once.
func (r *Runner) WithParallel(n int) *Runner {
	if n < 1 {
		n = 1
	}
	r.parallel = n
	return r
}

// WithFailFast skips every scenario after the first failure. It forces
// sequential execution.
func (r *Runner) WithFailFast(v bool) *Runner {
	r.failFast = v
	return r
}

// WithSleep replaces the wait used by sleep steps.
func (r *Runner) WithSleep(fn func(context.Context, time.Duration) error) *Runner {
	if fn != nil {
		r.sleep = fn
	}
	return r
}

// WithNow replaces the clock behind ${now} and ${paris_now}.
func (r *Runner) WithNow(fn func() time.Time) *Runner {
	if fn != nil {
		r.now = fn
	}
	return r
}

// WithCoverage records every call against an OpenAPI document.
func (r *Runner) WithCoverage(c *contract.Coverage) *Runner {
	r.coverage = c
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

// ---- Run ----

// Run executes missions in order and always returns a complete result tree.
// Cancelling ctx fails the running scenarios (after teardown) and marks the
// rest skipped.
func (r *Runner) Run(ctx context.Context, missions []*ir.Mission) *RunResult {
	res := &RunResult{StartedAt: r.now(), Missions: make([]MissionResult, len(missions))}
	var failed atomic.Bool

	for _, batch := range r.batches(missions) {
		if len(batch) == 1 {
			i := batch[0]
			res.Missions[i] = r.runMission(ctx, missions[i], &failed)
			continue
		}
		var g errgroup.Group
		g.SetLimit(r.parallel)
		for _, i := range batch {
			g.Go(func() error {
				res.Missions[i] = r.runMission(ctx, missions[i], &failed)
				return nil
			})
		}
		_ = g.Wait()
	}
	res.FinishedAt = r.now()
	return res
}

// batches groups mission indexes. A batch with more than one mission holds
// consecutive isolatable missions whose principal sets are pairwise disjoint.
func (r *Runner) batches(missions []*ir.Mission) [][]int {
	var out [][]int
	if r.parallel <= 1 || r.failFast {
		for i := range missions {
			out = append(out, []int{i})
		}
		return out
	}
	var cur []int
	used := map[string]bool{}
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur, used = nil, map[string]bool{}
	}
	for i, m := range missions {
		if !m.Isolatable {
			flush()
			out = append(out, []int{i})
			continue
		}
		ps := principalsOf(m)
		clash := false
		for _, p := range ps {
			if used[p] {
				clash = true
				break
			}
		}
		if clash {
			flush()
		}
		cur = append(cur, i)
		for _, p := range ps {
			used[p] = true
		}
	}
	flush()
	return out
}

// principalsOf lists every principal a mission can act as.
func principalsOf(m *ir.Mission) []string {
	seen := map[string]bool{}
	if m.Principal != "" {
		seen[m.Principal] = true
	} else {
		seen[identity.AnonymousName] = true
	}
	for i := range m.Scenarios {
		for _, n := range referenced(m, &m.Scenarios[i]) {
			seen[n] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// referenced lists the principals a scenario starts as, switches to or
// tears down as, in step order. Interpolated names are resolved at run time
// and left out.
func referenced(m *ir.Mission, sc *ir.Scenario) []string {
	out := []string{principalFor(m, sc)}
	add := func(n string) {
		if n == "" || strings.Contains(n, "${") || slices.Contains(out, n) {
			return
		}
		out = append(out, n)
	}
	for _, st := range sc.Steps {
		switch {
		case st.Switch != "":
			add(st.Switch)
		case st.Call != nil && st.Call.Fixture != nil && st.Call.Fixture.Teardown != nil:
			add(st.Call.Fixture.Teardown.Principal)
		case st.Register != nil && st.Register.Teardown != nil:
			add(st.Register.Teardown.Principal)
		}
	}
	return out
}

func (r *Runner) runMission(ctx context.Context, m *ir.Mission, failed *atomic.Bool) MissionResult {
	start := time.Now()
	mr := MissionResult{Name: m.Name, Scenarios: make([]ScenarioResult, 0, len(m.Scenarios))}
	logging.Info("executor", "mission %s: %d scenario(s)", m.Name, len(m.Scenarios))
	for i := range m.Scenarios {
		sc := &m.Scenarios[i]
		var sr ScenarioResult
		switch {
		case ctx.Err() != nil:
			sr = skipped(m, sc, ReasonCancelled)
		case r.failFast && failed.Load():
			sr = skipped(m, sc, ReasonFailFast)
		default:
			sr = r.runScenario(ctx, m, sc)
		}
		if sr.Status == StatusFail {
			failed.Store(true)
		}
		logging.Info("executor", "%s / %s: %s %s", m.Name, sc.Name, sr.Status, sr.Reason)
		mr.Scenarios = append(mr.Scenarios, sr)
	}
	mr.Duration = time.Since(start)
	return mr
}

// ---- Scenario resolution ----

func principalFor(m *ir.Mission, sc *ir.Scenario) string {
	switch {
	case sc.Principal != "":
		return sc.Principal
	case m.Principal != "":
		return m.Principal
	}
	return identity.AnonymousName
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func skipped(m *ir.Mission, sc *ir.Scenario, reason string) ScenarioResult {
	return ScenarioResult{
		Mission:   m.Name,
		Name:      sc.Name,
		Principal: principalFor(m, sc),
		Tags:      union(m.Tags, sc.Tags),
		Status:    StatusSkip,
		Reason:    reason,
	}
}

// skipReason decides whether a scenario can start at all.
func (r *Runner) skipReason(m *ir.Mission, sc *ir.Scenario) string {
	if slices.Contains(union(m.Tags, sc.Tags), ir.TagSkip) {
		return ReasonTaggedSkip
	}
	for _, name := range referenced(m, sc) {
		if !r.known(name) {
			return ReasonMissingPrincipal + name
		}
	}
	for _, f := range union(m.Requires, sc.Requires) {
		if enabled, known := r.env.Feature(f); known && !enabled {
			return ReasonFeatureDisabled + f
		}
	}
	return ""
}

func (r *Runner) known(name string) bool {
	_, ok := r.dir.Lookup(name)
	return ok
}

// budget is the scenario deadline: the worst case of every call and sleep
// plus Slack, unless the scenario pins its own.
func (r *Runner) budget(sc *ir.Scenario) time.Duration {
	if sc.TimeoutMs > 0 {
		return time.Duration(sc.TimeoutMs) * time.Millisecond
	}
	attempts := time.Duration(r.client.Config().MaxAttempts)
	total := Slack
	for _, st := range sc.Steps {
		switch {
		case st.Call != nil:
			req := httpclient.Request{Timeout: time.Duration(st.Call.Request.TimeoutMs) * time.Millisecond}
			total += r.client.Timeout(req) * attempts
		case st.Sleep != "":
			if d, err := time.ParseDuration(st.Sleep); err == nil && d > 0 {
				total += d
			}
		}
	}
	return total
}

func (r *Runner) runScenario(ctx context.Context, m *ir.Mission, sc *ir.Scenario) ScenarioResult {
	res := skipped(m, sc, "")
	if reason := r.skipReason(m, sc); reason != "" {
		res.Reason = reason
		return res
	}
	start := time.Now()

	ident, err := identity.NewContext(r.dir, res.Principal)
	if err != nil {
		// skipReason already resolved the principal.
		res.Status, res.Reason = StatusFail, ReasonPrecondition
		res.Failure = &Failure{Diagnostic: err.Error()}
		return res
	}
	layers := []map[string]string{m.Vars, sc.Vars, r.env.Vars()}
	st := &state{
		r:        r,
		mission:  m.Name,
		scenario: sc.Name,
		ident:    ident,
		scope:    newScope(m.Name, sc.Name, r.now(), layers...),
		registry: fixture.NewRegistry(),
	}

	sctx, cancel := context.WithTimeoutCause(ctx, r.budget(sc), errScenarioTimeout)
	fail := st.run(sctx, sc.Steps)
	timedOut := errors.Is(context.Cause(sctx), errScenarioTimeout)
	cancel()

	// Teardown runs even when ctx is done.
	out := st.registry.Unwind(context.WithoutCancel(ctx), r.client, r.dir.Lookup)

	res.Steps = st.steps
	res.SoftFailures = st.soft
	res.Fixtures = st.registry.Registered()
	res.Teardown = out.Attempts
	for _, w := range out.Warnings {
		res.TeardownWarnings = append(res.TeardownWarnings, w.Error())
	}
	res.Duration = time.Since(start)

	if fail == nil {
		res.Status, res.Reason = StatusPass, ""
		return res
	}
	switch {
	case timedOut:
		fail.reason = ReasonScenarioTimeout
	case ctx.Err() != nil:
		fail.reason = ReasonCancelled
	}
	res.Status, res.Reason = StatusFail, fail.reason
	res.Failure = &fail.Failure
	return res
}
