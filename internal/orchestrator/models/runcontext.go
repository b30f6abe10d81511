package models

import (
	"maps"
	"os"
	"slices"
	"strings"
)

// RunContext is the explicit environment of a run. Env is captured once from the
// process environment when the run starts and is never mutated afterwards; child
// processes receive environments derived from it instead of inheriting ambiently.
type RunContext struct {
	env  map[string]string
	vars map[string]string
}

// CaptureEnv converts an os.Environ-style slice to a map. Later entries win.
func CaptureEnv(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// NewRunContext copies env and vars so later changes by the caller are not observed.
func NewRunContext(env, vars map[string]string) *RunContext {
	return &RunContext{env: maps.Clone(env), vars: maps.Clone(vars)}
}

// Getenv returns a captured environment variable.
func (c *RunContext) Getenv(key string) string { return c.env[key] }

// Var returns a run variable such as LIB_DIR.
func (c *RunContext) Var(name string) string { return c.vars[name] }

// Vars returns a copy of the run variables.
func (c *RunContext) Vars() map[string]string { return maps.Clone(c.vars) }

// Expand substitutes ${NAME} references, preferring run variables over the
// captured environment. Unknown names expand to the empty string.
func (c *RunContext) Expand(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := c.vars[name]; ok {
			return v
		}
		return c.env[name]
	})
}

// ExpandAll applies Expand to every element.
func (c *RunContext) ExpandAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = c.Expand(s)
	}
	return out
}

// Environ returns the captured environment with overrides applied, as a sorted
// KEY=VALUE slice suitable for process.Command.Env.
func (c *RunContext) Environ(overrides map[string]string) []string {
	merged := maps.Clone(c.env)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, overrides)
	keys := slices.Sorted(maps.Keys(merged))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
