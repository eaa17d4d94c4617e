// Package env composes the environment handed to the sidecar.
package env

import (
	"os"
	"sort"
	"strings"
)

// PythonIOEncoding forces UTF-8 text I/O in the Python-based sidecar.
const PythonIOEncoding = "PYTHONIOENCODING"

type Var map[string]string

// Env merges the host environment with configured and forced variables.
type Env struct {
	Var   Var // configured variables (K->V)
	Force Var // variables that always win, even over per-spawn overrides
	env   Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var:   make(Var),
		Force: Var{PythonIOEncoding: "utf-8"},
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = parse(os.Environ())
}

// FromList replaces the cached base with the given K=V entries.
func (e *Env) FromList(kvs []string) {
	e.env = parse(kvs)
}

// Set sets a configured variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetAll applies K=V entries; malformed entries are skipped.
func (e *Env) SetAll(kvs []string) {
	for k, v := range parse(kvs) {
		e.Set(k, v)
	}
}

// Unset removes a configured variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment:
// base (OS or cached) -> configured Var -> perSpawn overrides -> Force.
// ${VAR} references are expanded against the composed map (one pass, no
// recursion). The result is sorted by key.
func (e *Env) Merge(perSpawn []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(e.Force))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range parse(perSpawn) {
		m[k] = v
	}
	for k, v := range e.Force {
		if k == "" {
			continue
		}
		m[k] = v
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	keys := make([]string, 0, len(expanded))
	for k := range expanded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expanded[k])
	}
	return out
}

// Lookup returns the value of key in a K=V list.
func Lookup(kvs []string, key string) (string, bool) {
	v, ok := parse(kvs)[key]
	return v, ok
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
