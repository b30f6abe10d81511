package git

import (
	"context"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// CLIBackend drives the git command line through a process.Runner.
type CLIBackend struct {
	runner  process.Runner
	env     []string
	timeout time.Duration
	binary  string
}

// NewCLIBackend returns a backend running "git" with the given child environment.
// Terminal prompts are disabled so a missing credential fails instead of hanging.
func NewCLIBackend(runner process.Runner, env []string, timeout time.Duration) *CLIBackend {
	childEnv := make([]string, 0, len(env)+1)
	childEnv = append(childEnv, env...)
	childEnv = append(childEnv, "GIT_TERMINAL_PROMPT=0")
	return &CLIBackend{runner: runner, env: childEnv, timeout: timeout, binary: "git"}
}

func (b *CLIBackend) Name() string { return string(config.SourceBackendCLI) }

// Clone runs `git clone -b <ref> <url> <path>` from the parent directory.
func (b *CLIBackend) Clone(ctx context.Context, co config.Checkout) error {
	_, err := b.runner.Run(ctx, process.Command{
		Name:    b.binary,
		Args:    []string{"clone", "-b", co.Ref, co.URL, co.Path},
		Dir:     filepath.Dir(co.Path),
		Env:     b.env,
		Timeout: b.timeout,
		Expect:  []string{filepath.Join(co.Path, ".git")},
	})
	return err
}

// Sync runs `git pull --rebase origin <ref>` inside the checkout.
func (b *CLIBackend) Sync(ctx context.Context, co config.Checkout) error {
	_, err := b.runner.Run(ctx, process.Command{
		Name:    b.binary,
		Args:    []string{"pull", "--rebase", "origin", co.Ref},
		Dir:     co.Path,
		Env:     b.env,
		Timeout: b.timeout,
	})
	return err
}
