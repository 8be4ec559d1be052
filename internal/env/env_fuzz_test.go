package env

import (
	"strings"
	"testing"
)

// FuzzBlock fuzzes Block/expand with random inputs to ensure no panics and
// basic invariants around ${VAR} expansion.
func FuzzBlock(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=${B}-y"))
	f.Add([]byte("FOO=bar"), []byte("FOO=${FOO}"))
	f.Add([]byte("X=$Y"), []byte("Y=${X}"))

	f.Fuzz(func(t *testing.T, globalB []byte, perB []byte) {
		global := splitNZ(string(globalB))
		per := splitNZ(string(perB))
		if len(global) > 20 {
			global = global[:20]
		}
		if len(per) > 20 {
			per = per[:20]
		}

		e := New()
		e.SetPairs(global)
		vars := make(map[string]string)
		for _, kv := range per {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				vars[k] = v
			}
		}
		out := e.Block(vars)
		for _, kv := range out {
			if !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
			if strings.HasPrefix(kv, "=") {
				t.Fatalf("empty key: %q", kv)
			}
		}
		// With explicit vars the OS environment is not consulted, so no
		// placeholder can appear unless the input carried a '$'.
		if len(vars) == 0 {
			return
		}
		for _, s := range append(append([]string{}, global...), per...) {
			if strings.ContainsRune(s, '$') {
				return
			}
		}
		for _, kv := range out {
			if strings.Contains(kv, "${") {
				t.Fatalf("unexpected placeholder remains: %q", kv)
			}
		}
	})
}

// splitNZ splits s by newlines and returns non-empty trimmed lines.
func splitNZ(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
