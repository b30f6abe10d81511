package builder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// Builder implements models.ComponentBuilder.
type Builder struct {
	cfg    *config.Config
	rc     *models.RunContext
	runner process.Runner
	logger *slog.Logger
}

// Option customizes a Builder.
type Option func(*Builder)

// WithLogger sets the Builder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New returns a Builder that runs its tools through runner.
func New(cfg *config.Config, rc *models.RunContext, runner process.Runner, opts ...Option) *Builder {
	b := &Builder{cfg: cfg, rc: rc, runner: runner, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build compiles component c.
func (b *Builder) Build(ctx context.Context, c models.Component) (models.StepReport, error) {
	switch c {
	case models.ComponentTunnel:
		return b.buildTunnel(ctx)
	case models.ComponentControlPlane:
		return b.buildControlPlane(ctx)
	default:
		return models.StepReport{}, errors.InternalError("unknown component").
			WithContext("component", string(c)).
			Build()
	}
}

// run executes cmd and wraps a failure as a fatal build error for component.
func (b *Builder) run(ctx context.Context, component models.Component, cmd process.Command) error {
	if cmd.Timeout == 0 {
		cmd.Timeout = b.cfg.Timeouts.Build
	}
	b.logger.Info("Running build command",
		logfields.Component(string(component)),
		logfields.Command(cmd.String()),
		logfields.Dir(cmd.Dir))
	if _, err := b.runner.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errors.WrapError(err, errors.CategoryBuild, "build command failed").
			Fatal().
			WithContext("component", string(component)).
			WithContext("command", cmd.String()).
			Build()
	}
	return nil
}

func buildFailure(err error, component models.Component, msg string) error {
	return errors.WrapError(err, errors.CategoryBuild, msg).
		Fatal().
		WithContext("component", string(component)).
		Build()
}

func binaries(dir string, rel []string) []string {
	out := make([]string, len(rel))
	for i, r := range rel {
		out[i] = filepath.Join(dir, r)
	}
	return out
}

func makeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0o755)
}
