// Package processtest provides a recording process.Runner for tests. Handlers
// simulate external tools, typically by creating the files the real tool would.
package processtest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/process"
)

// Handler simulates one external tool.
type Handler func(cmd process.Command) error

// Runner records every command and dispatches to handlers keyed by the base name
// of the executable. Commands without a handler succeed without side effects.
// Expect paths are verified exactly as ExecRunner does.
type Runner struct {
	mu       sync.Mutex
	calls    []process.Command
	handlers map[string]Handler
}

// New returns an empty recording runner.
func New() *Runner {
	return &Runner{handlers: make(map[string]Handler)}
}

// Handle registers h for executables whose base name is name.
func (r *Runner) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.handlers[filepath.Base(cmd.Name)]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return process.Result{}, err
	}
	start := time.Now()
	if h != nil {
		if err := h(cmd); err != nil {
			code := 1
			if ee, ok := err.(*process.ExitError); ok {
				code = ee.Code
			}
			return process.Result{ExitCode: code, Duration: time.Since(start)}, err
		}
	}
	return process.Result{Duration: time.Since(start)}, process.VerifyOutputs(cmd)
}

// Calls returns a copy of every recorded command in order.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded commands whose executable base name is name.
func (r *Runner) CallsTo(name string) []process.Command {
	var out []process.Command
	for _, c := range r.Calls() {
		if filepath.Base(c.Name) == name {
			out = append(out, c)
		}
	}
	return out
}

// Lines returns the recorded command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Touch returns a handler that creates each path (relative paths are resolved against
// the command's Dir) with placeholder content.
func Touch(paths ...string) Handler {
	return func(cmd process.Command) error {
		for _, p := range paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(cmd.Dir, p)
			}
			if err := WriteFile(p, "built by "+filepath.Base(cmd.Name)); err != nil {
				return err
			}
		}
		return nil
	}
}

// TouchExpected returns a handler that creates every path in cmd.Expect.
func TouchExpected() Handler {
	return func(cmd process.Command) error {
		return Touch(cmd.Expect...)(cmd)
	}
}

// Fail returns a handler that exits with code.
func Fail(code int, stderr string) Handler {
	return func(cmd process.Command) error {
		return &process.ExitError{Command: cmd.String(), Code: code, Stderr: stderr}
	}
}

// Chain runs handlers in order, stopping at the first error.
func Chain(hs ...Handler) Handler {
	return func(cmd process.Command) error {
		for _, h := range hs {
			if err := h(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

// WriteFile creates parent directories and writes content to path.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o755)
}
