// Package inspect decodes response bodies and gives uniform access to them:
// dotted-path extraction and an envelope view over the listing shapes the
// backend returns.
package inspect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var ErrPath = errors.New("invalid path")

type absentValue struct{}

func (absentValue) String() string { return "<absent>" }

type undecodedValue struct{}

func (undecodedValue) String() string { return "<undecoded>" }

// Absent is returned for a missing node. It is distinct from a JSON null (nil).
var Absent any = absentValue{}

// Undecoded stands in for a body that is not valid JSON.
var Undecoded any = undecodedValue{}

func IsAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

func IsUndecoded(v any) bool {
	_, ok := v.(undecodedValue)
	return ok
}

// Decode parses raw as a single JSON value, keeping numbers as json.Number so
// integers compare exactly. A leading BOM is tolerated. Empty, invalid or
// trailing-garbage bodies yield Undecoded and the reason.
func Decode(raw []byte) (any, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(raw)) == 0 {
		return Undecoded, errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Undecoded, fmt.Errorf("decode json: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return Undecoded, errors.New("decode json: trailing data after top-level value")
	}
	return v, nil
}

// ---- Paths ----

type segment struct {
	key   string
	index int
	isIdx bool
}

// Path is a parsed dotted path such as "a.b[2].c". The empty path is the root.
type Path struct {
	raw  string
	segs []segment
}

func (p Path) String() string { return p.raw }

// ParsePath accepts an optional "$." prefix as used by jsonPath-style targets.
func ParsePath(s string) (Path, error) {
	p := Path{raw: s}
	rest := strings.TrimPrefix(strings.TrimPrefix(s, "$"), ".")
	if s == "$" {
		rest = ""
	}
	for rest != "" {
		switch rest[0] {
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, fmt.Errorf("%w: unclosed bracket in %q", ErrPath, s)
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return Path{}, fmt.Errorf("%w: index %q in %q must be a non-negative integer", ErrPath, rest[1:end], s)
			}
			p.segs = append(p.segs, segment{index: n, isIdx: true})
			rest = rest[end+1:]
		case '.':
			rest = rest[1:]
			if rest == "" || rest[0] == '.' || rest[0] == '[' {
				return Path{}, fmt.Errorf("%w: empty key in %q", ErrPath, s)
			}
		default:
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			p.segs = append(p.segs, segment{key: rest[:end]})
			rest = rest[end:]
		}
	}
	return p, nil
}

// MustPath panics on malformed paths; for literals in code.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup walks v. Keys only apply to objects and indices only to arrays;
// anything else yields Absent.
func (p Path) Lookup(v any) any {
	if IsUndecoded(v) {
		return Absent
	}
	cur := v
	for _, sg := range p.segs {
		if sg.isIdx {
			arr, ok := cur.([]any)
			if !ok || sg.index >= len(arr) {
				return Absent
			}
			cur = arr[sg.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return Absent
		}
		next, ok := obj[sg.key]
		if !ok {
			return Absent
		}
		cur = next
	}
	return cur
}

// Get parses path and looks it up in v.
func Get(v any, path string) (any, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Absent, err
	}
	return p.Lookup(v), nil
}

// ---- Numbers ----

// Num is a JSON number kept exact when it is an integer.
type Num struct {
	Int   int64
	Float float64
	IsInt bool
}

// Number normalizes decoded JSON numbers and Go numeric literals (from YAML
// or code). Strings are not numbers.
func Number(v any) (Num, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Num{Int: i, Float: float64(i), IsInt: true}, true
		}
		f, err := x.Float64()
		if err != nil {
			return Num{}, false
		}
		return floatNum(f), true
	case int:
		return Num{Int: int64(x), Float: float64(x), IsInt: true}, true
	case int32:
		return Num{Int: int64(x), Float: float64(x), IsInt: true}, true
	case int64:
		return Num{Int: x, Float: float64(x), IsInt: true}, true
	case uint:
		return Number(uint64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Num{Float: float64(x)}, true
		}
		return Num{Int: int64(x), Float: float64(x), IsInt: true}, true
	case float32:
		return floatNum(float64(x)), true
	case float64:
		return floatNum(x), true
	}
	return Num{}, false
}

func floatNum(f float64) Num {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Num{Int: int64(f), Float: f, IsInt: true}
	}
	return Num{Float: f}
}

// Compare returns -1, 0 or 1. Integers compare exactly; otherwise floats
// compare within tol.
func (n Num) Compare(o Num, tol float64) int {
	if n.IsInt && o.IsInt {
		switch {
		case n.Int < o.Int:
			return -1
		case n.Int > o.Int:
			return 1
		}
		return 0
	}
	d := n.Float - o.Float
	switch {
	case math.Abs(d) <= tol:
		return 0
	case d < 0:
		return -1
	}
	return 1
}

func (n Num) String() string {
	if n.IsInt {
		return strconv.FormatInt(n.Int, 10)
	}
	return strconv.FormatFloat(n.Float, 'g', -1, 64)
}

func intOf(v any) (int, bool) {
	n, ok := Number(v)
	if !ok || !n.IsInt {
		return 0, false
	}
	return int(n.Int), true
}
