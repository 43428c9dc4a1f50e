package scenario

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Expand replaces {{services.<name>}} with a target base URL and
// {{vars.<name>}} with a captured value.
func Expand(s string, targets, vars map[string]string) (string, error) {
	result := s
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			return result, nil
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression at position %d", start)
		}
		end += start + 2

		expr := strings.TrimSpace(result[start+2 : end-2])
		value, err := resolve(expr, targets, vars)
		if err != nil {
			return "", err
		}
		result = result[:start] + value + result[end:]
	}
}

func resolve(expr string, targets, vars map[string]string) (string, error) {
	kind, name, ok := strings.Cut(expr, ".")
	if !ok || name == "" {
		return "", fmt.Errorf("invalid template expression %q (expected services.<name> or vars.<name>)", expr)
	}
	switch kind {
	case "services":
		if u, ok := targets[name]; ok {
			return u, nil
		}
		return "", fmt.Errorf("template %q: unknown service %q", expr, name)
	case "vars":
		if v, ok := vars[name]; ok {
			return v, nil
		}
		return "", fmt.Errorf("template %q: variable %q not captured", expr, name)
	default:
		return "", fmt.Errorf("invalid template expression %q (expected services.<name> or vars.<name>)", expr)
	}
}

// lookup resolves a dotted path with optional [i] indexes against a
// decoded JSON document.
func lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		field, rest, _ := strings.Cut(seg, "[")
		if field != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[field]; !ok {
				return nil, false
			}
		}
		for rest != "" {
			idx, tail, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, false
			}
			i, err := strconv.Atoi(idx)
			arr, isArr := cur.([]any)
			if err != nil || !isArr || i < 0 || i >= len(arr) {
				return nil, false
			}
			cur = arr[i]
			rest = strings.TrimPrefix(tail, "[")
		}
	}
	return cur, true
}

// format renders a JSON value the way scenario files spell it.
func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}
