package env

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Sources lists where configuration comes from. Later sources override earlier
// ones: dotenv files, then the process environment, then JSON env files.
type Sources struct {
	DotEnv    []string
	Environ   []string
	JSONFiles []string
}

// Load reads every source and resolves the Environment. Keys from JSON env files
// also become interpolation variables.
func Load(src Sources) (*Environment, error) {
	values := map[string]string{}

	if len(src.DotEnv) > 0 {
		m, err := godotenv.Read(src.DotEnv...)
		if err != nil {
			return nil, fmt.Errorf("%w: read dotenv: %v", ErrConfig, err)
		}
		for k, v := range m {
			values[k] = v
		}
	}
	for k, v := range parseEnviron(src.Environ) {
		values[k] = v
	}
	vars, err := LoadJSONFiles(src.JSONFiles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	for k, v := range vars {
		values[k] = v
	}
	return Resolve(values, vars)
}

func parseEnviron(kvs []string) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// LoadJSONFiles reads flat JSON objects; non-string values are coerced with fmt.Sprint.
func LoadJSONFiles(paths []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		for k, v := range m {
			switch x := v.(type) {
			case string:
				out[k] = x
			case nil:
				out[k] = ""
			default:
				out[k] = fmt.Sprint(x)
			}
		}
	}
	return out, nil
}
