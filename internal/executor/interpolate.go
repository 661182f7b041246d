package executor

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"coach-qa/internal/clock"
	"coach-qa/internal/ir"
)

// ---- Interpolation (with defaults + unresolved guard) ----

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// scope resolves ${...} references for one scenario: built-ins, captures and
// declared variables.
type scope struct {
	vars     map[string]string
	builtins map[string]string
	now      time.Time
}

func seedFor(mission, scenario string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(mission + "/" + scenario))
	return h.Sum64()
}

// rngReader adapts a seeded generator to io.Reader for uuid.
type rngReader struct{ r *rand.Rand }

func (g rngReader) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], g.r.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// newScope seeds the random built-ins from the scenario identity so generated
// slugs and emails repeat across runs.
func newScope(mission, scenario string, now time.Time, layers ...map[string]string) *scope {
	seed := seedFor(mission, scenario)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	id, err := uuid.NewRandomFromReader(rngReader{rng})
	if err != nil {
		id = uuid.New()
	}
	s := &scope{
		vars: map[string]string{},
		builtins: map[string]string{
			"rand":      fmt.Sprintf("%08x", rng.Uint32()),
			"uuid":      id.String(),
			"now":       now.UTC().Format(time.RFC3339),
			"paris_now": clock.ParisWall(now),
			"scenario":  scenario,
			"mission":   mission,
		},
		now: now,
	}
	for _, l := range layers {
		for k, v := range l {
			s.vars[k] = v
		}
	}
	return s
}

func (s *scope) set(k, v string) { s.vars[k] = v }

func (s *scope) lookup(key string) (string, bool) {
	if v, ok := s.builtins[key]; ok {
		return v, true
	}
	if off, ok := strings.CutPrefix(key, "paris_now:"); ok {
		v, err := clock.ParisWallOffset(s.now, off)
		return v, err == nil
	}
	v, ok := s.vars[key]
	return v, ok && v != ""
}

// ${KEY|default} supported; if missing and no default, leaves ${KEY} intact (so we can error clearly)
func (s *scope) interpolate(str string) string {
	return varPattern.ReplaceAllStringFunc(str, func(m string) string {
		inner := m[2 : len(m)-1]
		key, def := inner, ""
		if i := strings.Index(inner, "|"); i >= 0 {
			key, def = inner[:i], inner[i+1:]
		}
		if v, ok := s.lookup(key); ok {
			return v
		}
		if def != "" {
			return def
		}
		return m
	})
}

func (s *scope) walk(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return s.interpolate(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = s.walk(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = s.walk(x[i])
		}
		return out
	default:
		return v
	}
}

func (s *scope) expandMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = s.interpolate(v)
	}
	return out
}

func (s *scope) assertion(a ir.Assertion) ir.Assertion {
	a.Path = s.interpolate(a.Path)
	a.Value = s.walk(a.Value)
	if a.Values != nil {
		vals := make([]any, len(a.Values))
		for i, v := range a.Values {
			vals[i] = s.walk(v)
		}
		a.Values = vals
	}
	if a.Where != nil {
		where := make([]ir.Assertion, len(a.Where))
		for i, w := range a.Where {
			where[i] = s.assertion(w)
		}
		a.Where = where
	}
	return a
}

func findUnresolved(s string) []string {
	var out []string
	for _, m := range varPattern.FindAllStringSubmatch(s, -1) {
		key := m[1]
		if i := strings.Index(key, "|"); i >= 0 {
			continue
		} // had default
		out = append(out, "${"+key+"}")
	}
	return out
}

// stringify renders a captured JSON value as a variable.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	}
	return fmt.Sprint(v)
}
