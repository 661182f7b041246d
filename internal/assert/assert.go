// Package assert is the check vocabulary scenarios use against REST JSON
// responses. Each check evaluates to a Result with a diagnostic instead of
// panicking or calling t.Fatal, so any runner can drive it.
package assert

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"coach-qa/internal/httpclient"
	"coach-qa/internal/inspect"
)

// ErrProtocol marks a check that needed a JSON body and did not get one.
var ErrProtocol = errors.New("response body is not JSON")

// Subject is what a check looks at: a whole response, or one listing item.
type Subject struct {
	Status  int
	Body    any
	Elapsed time.Duration
}

func FromResponse(r *httpclient.Response) Subject {
	return Subject{Status: r.Status, Body: r.BodyJSON, Elapsed: r.Elapsed}
}

type Result struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Soft       bool   `json:"soft,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Err        error  `json:"-"`
}

// Check is a compiled assertion.
type Check struct {
	Name string
	Soft bool

	needsJSON bool
	fn        func(Subject) (bool, string)
}

// Eval runs the check. Checks reading the body fail with ErrProtocol when the
// body is undecoded.
func (c Check) Eval(s Subject) Result {
	r := Result{Name: c.Name, Soft: c.Soft}
	if c.needsJSON && inspect.IsUndecoded(s.Body) {
		r.Err = ErrProtocol
		r.Diagnostic = c.Name + ": response body is not JSON"
		return r
	}
	r.Passed, r.Diagnostic = c.fn(s)
	if r.Passed {
		r.Diagnostic = ""
	}
	return r
}

// Soft returns c marked soft: its failure is recorded but does not abort.
func Soft(c Check) Check {
	c.Soft = true
	return c
}

func bodyCheck(name string, fn func(Subject) (bool, string)) Check {
	return Check{Name: name, needsJSON: true, fn: fn}
}

// ---- status ----

func StatusIs(want int) Check {
	return Check{Name: "status_is", fn: func(s Subject) (bool, string) {
		return s.Status == want, fmt.Sprintf("status: got %d, want %d", s.Status, want)
	}}
}

func StatusIn(codes ...int) Check {
	return Check{Name: "status_in", fn: func(s Subject) (bool, string) {
		for _, c := range codes {
			if s.Status == c {
				return true, ""
			}
		}
		return false, fmt.Sprintf("status: got %d, want one of %v", s.Status, codes)
	}}
}

func ElapsedUnder(limit time.Duration) Check {
	return Check{Name: "elapsed_under", fn: func(s Subject) (bool, string) {
		return s.Elapsed < limit, fmt.Sprintf("elapsed: got %s, want under %s", s.Elapsed.Round(time.Millisecond), limit)
	}}
}

// ---- fields ----

func JSONHas(path inspect.Path) Check {
	return bodyCheck("json_has", func(s Subject) (bool, string) {
		return !inspect.IsAbsent(path.Lookup(s.Body)), fmt.Sprintf("json_has: %s not found", path)
	})
}

func JSONAbsent(path inspect.Path) Check {
	return bodyCheck("json_absent", func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		return inspect.IsAbsent(got), fmt.Sprintf("json_absent: %s present with %s", path, render(got))
	})
}

func JSONEquals(path inspect.Path, want any, tol float64) Check {
	return bodyCheck("json_equals", func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		return !inspect.IsAbsent(got) && Equal(got, want, tol),
			fmt.Sprintf("json_equals %s: got %s, want %s", path, render(got), render(want))
	})
}

func JSONNotEquals(path inspect.Path, want any, tol float64) Check {
	return bodyCheck("json_not_equals", func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		return !inspect.IsAbsent(got) && !Equal(got, want, tol),
			fmt.Sprintf("json_not_equals %s: got %s, want anything else", path, render(got))
	})
}

func JSONIn(path inspect.Path, set []any) Check {
	return bodyCheck("json_in", func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		if !inspect.IsAbsent(got) {
			for _, w := range set {
				if Equal(got, w, 0) {
					return true, ""
				}
			}
		}
		return false, fmt.Sprintf("json_in %s: got %s, want one of %s", path, render(got), render(set))
	})
}

// JSON kinds accepted by JSONType.
var jsonKinds = []string{"object", "array", "string", "number", "boolean", "null"}

func JSONType(path inspect.Path, kind string) Check {
	return bodyCheck("json_type", func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		k := kindOf(got)
		return k == kind, fmt.Sprintf("json_type %s: got %s, want %s", path, k, kind)
	})
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if inspect.IsAbsent(v) {
		return "absent"
	}
	if _, ok := inspect.Number(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Compare operators for numeric bounds and items_count.
const (
	OpEQ = "=="
	OpGT = ">"
	OpGE = ">="
	OpLT = "<"
	OpLE = "<="
)

func holds(op string, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	}
	return false
}

// JSONCompare checks a numeric field against want with op.
func JSONCompare(name string, path inspect.Path, op string, want inspect.Num, tol float64) Check {
	return bodyCheck(name, func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		n, ok := numberish(got)
		if !ok {
			return false, fmt.Sprintf("%s %s: got %s, want a number %s %s", name, path, render(got), op, want)
		}
		return holds(op, n.Compare(want, tol)), fmt.Sprintf("%s %s: got %s, want %s %s", name, path, n, op, want)
	})
}

func JSONContains(path inspect.Path, sub string) Check {
	return stringCheck("json_contains", path, "contain "+strconv.Quote(sub), func(s string) bool { return strings.Contains(s, sub) })
}

func JSONEndsWith(path inspect.Path, suffix string) Check {
	return stringCheck("json_ends_with", path, "end with "+strconv.Quote(suffix), func(s string) bool { return strings.HasSuffix(s, suffix) })
}

func JSONMatches(path inspect.Path, re *regexp.Regexp) Check {
	return stringCheck("json_matches", path, "match /"+re.String()+"/", re.MatchString)
}

func stringCheck(name string, path inspect.Path, want string, ok func(string) bool) Check {
	return bodyCheck(name, func(s Subject) (bool, string) {
		got := path.Lookup(s.Body)
		str, isStr := got.(string)
		return isStr && ok(str), fmt.Sprintf("%s %s: got %s, want string to %s", name, path, render(got), want)
	})
}

// ---- listings ----

func ItemsCount(op string, n int) Check {
	return bodyCheck("items_count", func(s Subject) (bool, string) {
		got := len(inspect.Envelope(s.Body).Items)
		c := 0
		switch {
		case got < n:
			c = -1
		case got > n:
			c = 1
		}
		return holds(op, c), fmt.Sprintf("items_count: got %d, want %s %d", got, op, n)
	})
}

func EnvelopeHasPagination() Check {
	return bodyCheck("envelope_has_pagination", func(s Subject) (bool, string) {
		v := inspect.Envelope(s.Body)
		switch {
		case !v.HasPagination:
			return false, fmt.Sprintf("envelope_has_pagination: body shape is %s, want {data, pagination{page,limit,total,pages}}", v.Shape)
		case v.Total < 0:
			return false, fmt.Sprintf("envelope_has_pagination: total %d is negative", v.Total)
		case v.Total < len(v.Items):
			return false, fmt.Sprintf("envelope_has_pagination: total %d below %d returned items", v.Total, len(v.Items))
		}
		return true, ""
	})
}

// EveryItem holds when every listing item satisfies all preds (vacuously for
// an empty listing).
func EveryItem(preds ...Check) Check {
	return bodyCheck("every_item", func(s Subject) (bool, string) {
		for i, it := range inspect.Envelope(s.Body).Items {
			if diag, ok := allHold(preds, Subject{Status: s.Status, Body: it, Elapsed: s.Elapsed}); !ok {
				return false, fmt.Sprintf("every_item: item %d: %s", i, diag)
			}
		}
		return true, ""
	})
}

func AnyItem(preds ...Check) Check {
	return bodyCheck("any_item", func(s Subject) (bool, string) {
		items := inspect.Envelope(s.Body).Items
		var first string
		for _, it := range items {
			diag, ok := allHold(preds, Subject{Status: s.Status, Body: it, Elapsed: s.Elapsed})
			if ok {
				return true, ""
			}
			if first == "" {
				first = diag
			}
		}
		return false, fmt.Sprintf("any_item: none of %d item(s) matched (first mismatch: %s)", len(items), first)
	})
}

func allHold(preds []Check, s Subject) (string, bool) {
	for _, p := range preds {
		if r := p.Eval(s); !r.Passed {
			return r.Diagnostic, false
		}
	}
	return "", true
}

// IsolationSeesNone holds when the listing total is zero: the principal sees
// no other tenant's data.
func IsolationSeesNone() Check {
	return bodyCheck("isolation_sees_none", func(s Subject) (bool, string) {
		v := inspect.Envelope(s.Body)
		if v.Shape == inspect.ShapeSingle {
			return false, fmt.Sprintf("isolation_sees_none: body is not a listing: %s", render(s.Body))
		}
		return v.Total == 0 && len(v.Items) == 0, fmt.Sprintf("isolation_sees_none: total %d, %d item(s) visible", v.Total, len(v.Items))
	})
}

func IsolationSeesAtLeast(n int) Check {
	return bodyCheck("isolation_sees_at_least", func(s Subject) (bool, string) {
		v := inspect.Envelope(s.Body)
		if v.Shape == inspect.ShapeSingle {
			return false, fmt.Sprintf("isolation_sees_at_least: body is not a listing: %s", render(s.Body))
		}
		return v.Total >= n, fmt.Sprintf("isolation_sees_at_least: total %d, want >= %d", v.Total, n)
	})
}

// ---- values ----

// Equal is deep equality over decoded JSON with numbers normalized. An
// expected numeric string equals the same decoded number, so captured values
// can be compared back. A decoded string never equals an expected number.
func Equal(got, want any, tol float64) bool {
	if gn, ok := inspect.Number(got); ok {
		wn, ok := numberish(want)
		return ok && gn.Compare(wn, tol) == 0
	}
	if _, ok := inspect.Number(want); ok {
		return false
	}
	switch w := want.(type) {
	case nil:
		return got == nil
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !Equal(g[i], w[i], tol) {
				return false
			}
		}
		return true
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !Equal(gv, wv, tol) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(got, want)
}

func numberish(v any) (inspect.Num, bool) {
	if n, ok := inspect.Number(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return inspect.Num{}, false
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return inspect.Num{Int: i, Float: float64(i), IsInt: true}, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return inspect.Number(f)
	}
	return inspect.Num{}, false
}

const renderMax = 160

func render(v any) string {
	if inspect.IsAbsent(v) || inspect.IsUndecoded(v) {
		return fmt.Sprint(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	if len(b) > renderMax {
		return string(b[:renderMax]) + "..."
	}
	return string(b)
}
