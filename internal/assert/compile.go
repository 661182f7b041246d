package assert

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"coach-qa/internal/inspect"
	"coach-qa/internal/ir"
)

// ErrInvalid marks an assertion that cannot be compiled.
var ErrInvalid = errors.New("invalid assertion")

var countOps = []string{OpEQ, OpGE, OpLE}

var pathed = []string{
	ir.AssertJSONHas, ir.AssertJSONAbsent, ir.AssertJSONEquals, ir.AssertJSONNotEquals,
	ir.AssertJSONIn, ir.AssertJSONType, ir.AssertJSONGT, ir.AssertJSONGTE, ir.AssertJSONLT,
	ir.AssertJSONLTE, ir.AssertJSONContains, ir.AssertJSONEndsWith, ir.AssertJSONMatches,
}

var known = append(slices.Clone(pathed),
	ir.AssertStatusIs, ir.AssertStatusIn, ir.AssertItemsCount, ir.AssertEnvelope,
	ir.AssertEveryItem, ir.AssertAnyItem, ir.AssertElapsedUnder,
	ir.AssertIsolationNone, ir.AssertIsolationAtLeast,
)

func invalid(a ir.Assertion, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, a.Type, fmt.Sprintf(format, args...))
}

// Validate checks the structure of a before any value interpolation: the
// type is known, paths parse, operators and kinds are in range.
func Validate(a ir.Assertion) error {
	if !slices.Contains(known, a.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, a.Type)
	}
	if a.Tolerance < 0 {
		return invalid(a, "tolerance must be >= 0")
	}
	if slices.Contains(pathed, a.Type) {
		if a.Path == "" {
			return invalid(a, "path is required")
		}
		if _, err := inspect.ParsePath(a.Path); err != nil {
			return invalid(a, "%v", err)
		}
	}
	switch a.Type {
	case ir.AssertJSONType:
		if !slices.Contains(jsonKinds, a.Kind) {
			return invalid(a, "kind must be one of %s", strings.Join(jsonKinds, ", "))
		}
	case ir.AssertItemsCount:
		if a.Op != "" && !slices.Contains(countOps, a.Op) {
			return invalid(a, "op must be one of %s", strings.Join(countOps, " "))
		}
	case ir.AssertStatusIn, ir.AssertJSONIn:
		if len(a.Values) == 0 {
			return invalid(a, "values are required")
		}
	case ir.AssertEveryItem, ir.AssertAnyItem:
		if len(a.Where) == 0 {
			return invalid(a, "where is required")
		}
		for _, w := range a.Where {
			if err := Validate(w); err != nil {
				return fmt.Errorf("%s.where: %w", a.Type, err)
			}
		}
	case ir.AssertElapsedUnder:
		if a.Ms <= 0 {
			return invalid(a, "ms must be > 0")
		}
	}
	return nil
}

// Compile turns an interpolated assertion into a Check. Numeric positions
// accept numeric strings so captured values can be used as bounds.
func Compile(a ir.Assertion) (Check, error) {
	if err := Validate(a); err != nil {
		return Check{}, err
	}
	c, err := compile(a)
	if err != nil {
		return Check{}, err
	}
	if a.Soft {
		c = Soft(c)
	}
	return c, nil
}

func compile(a ir.Assertion) (Check, error) {
	var path inspect.Path
	if slices.Contains(pathed, a.Type) {
		path = inspect.MustPath(a.Path)
	}
	switch a.Type {
	case ir.AssertStatusIs:
		n, err := intValue(a, a.Value)
		if err != nil {
			return Check{}, err
		}
		return StatusIs(n), nil
	case ir.AssertStatusIn:
		codes := make([]int, 0, len(a.Values))
		for _, v := range a.Values {
			n, err := intValue(a, v)
			if err != nil {
				return Check{}, err
			}
			codes = append(codes, n)
		}
		return StatusIn(codes...), nil
	case ir.AssertJSONHas:
		return JSONHas(path), nil
	case ir.AssertJSONAbsent:
		return JSONAbsent(path), nil
	case ir.AssertJSONEquals:
		return JSONEquals(path, a.Value, a.Tolerance), nil
	case ir.AssertJSONNotEquals:
		return JSONNotEquals(path, a.Value, a.Tolerance), nil
	case ir.AssertJSONIn:
		return JSONIn(path, a.Values), nil
	case ir.AssertJSONType:
		return JSONType(path, a.Kind), nil
	case ir.AssertJSONGT, ir.AssertJSONGTE, ir.AssertJSONLT, ir.AssertJSONLTE:
		n, ok := numberish(a.Value)
		if !ok {
			return Check{}, invalid(a, "value %v is not a number", a.Value)
		}
		op := map[string]string{
			ir.AssertJSONGT: OpGT, ir.AssertJSONGTE: OpGE,
			ir.AssertJSONLT: OpLT, ir.AssertJSONLTE: OpLE,
		}[a.Type]
		return JSONCompare(a.Type, path, op, n, a.Tolerance), nil
	case ir.AssertJSONContains, ir.AssertJSONEndsWith, ir.AssertJSONMatches:
		s, ok := a.Value.(string)
		if !ok {
			return Check{}, invalid(a, "value must be a string")
		}
		switch a.Type {
		case ir.AssertJSONContains:
			return JSONContains(path, s), nil
		case ir.AssertJSONEndsWith:
			return JSONEndsWith(path, s), nil
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return Check{}, invalid(a, "%v", err)
		}
		return JSONMatches(path, re), nil
	case ir.AssertItemsCount:
		n, err := intValue(a, a.Value)
		if err != nil {
			return Check{}, err
		}
		op := a.Op
		if op == "" {
			op = OpEQ
		}
		return ItemsCount(op, n), nil
	case ir.AssertEnvelope:
		return EnvelopeHasPagination(), nil
	case ir.AssertEveryItem, ir.AssertAnyItem:
		preds := make([]Check, 0, len(a.Where))
		for _, w := range a.Where {
			p, err := Compile(w)
			if err != nil {
				return Check{}, fmt.Errorf("%s.where: %w", a.Type, err)
			}
			preds = append(preds, p)
		}
		if a.Type == ir.AssertEveryItem {
			return EveryItem(preds...), nil
		}
		return AnyItem(preds...), nil
	case ir.AssertElapsedUnder:
		return ElapsedUnder(time.Duration(a.Ms) * time.Millisecond), nil
	case ir.AssertIsolationNone:
		return IsolationSeesNone(), nil
	case ir.AssertIsolationAtLeast:
		n := 1
		if a.Value != nil {
			var err error
			if n, err = intValue(a, a.Value); err != nil {
				return Check{}, err
			}
		}
		return IsolationSeesAtLeast(n), nil
	}
	return Check{}, fmt.Errorf("%w: unknown type %q", ErrInvalid, a.Type)
}

func intValue(a ir.Assertion, v any) (int, error) {
	n, ok := numberish(v)
	if !ok || !n.IsInt {
		return 0, invalid(a, "value %v is not an integer", v)
	}
	return int(n.Int), nil
}
