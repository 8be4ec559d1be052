package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds supervisor-wide variables layered under every process environment.
type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		base[k] = v
	}
	e.env = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// SetPairs applies "KEY=VALUE" entries; malformed entries are skipped.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		e.Set(k, v)
	}
}

// Block composes the environment for one spawn.
//
// When vars is empty and there are no globals it returns nil, meaning the
// child inherits the supervisor's environment untouched. When vars is empty
// but globals exist, the OS environment is used as the base. A non-empty
// vars replaces the OS environment: the child sees globals overlaid with
// vars and nothing else. ${VAR} references are expanded against the composed
// map (single pass). Output is sorted by key.
func (e *Env) Block(vars map[string]string) []string {
	var globals Var
	if e != nil {
		globals = e.Var
	}
	if len(vars) == 0 && len(globals) == 0 {
		return nil
	}
	m := make(Var)
	if len(vars) == 0 {
		if e.env == nil {
			e.FromOS()
		}
		for k, v := range e.env {
			m[k] = v
		}
	}
	for k, v := range globals {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range vars {
		if k == "" {
			continue
		}
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// expand replaces each ${NAME} in s with the raw value of NAME from m.
// Substituted text is not rescanned and unknown names are left as written,
// so the result does not depend on map order.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok && name != "" {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}
