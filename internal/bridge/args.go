package bridge

import "github.com/loykin/nodebase/internal/process"

// Arguments arrive either JSON-decoded (string, []any, map[string]any) or
// from in-process callers with concrete Go types; both are accepted.

func stringArg(args map[string]any, field string) (string, error) {
	s, ok := args[field].(string)
	if !ok || s == "" {
		return "", badArg(field)
	}
	return s, nil
}

func decodeStart(args map[string]any) (process.Spec, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return process.Spec{}, err
	}
	cmd, ok := stringList(args["cmd"])
	if !ok || len(cmd) == 0 || cmd[0] == "" {
		return process.Spec{}, badArg("cmd")
	}
	env, ok := stringMap(args["env"])
	if !ok {
		return process.Spec{}, badArg("env")
	}
	return process.Spec{Name: name, Command: cmd, Env: env}, nil
}

func stringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...), true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// stringMap treats anything that isn't a map as absent. A map holding a
// non-string value is rejected.
func stringMap(v any) (map[string]string, bool) {
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	}
	return nil, true
}
