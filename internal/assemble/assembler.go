package assemble

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// Assembler implements models.Assembler.
type Assembler struct {
	cfg    *config.Config
	rc     *models.RunContext
	runner process.Runner
	logger *slog.Logger
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithLogger sets the Assembler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New returns an Assembler that invokes the package builder through runner.
func New(cfg *config.Config, rc *models.RunContext, runner process.Runner, opts ...Option) *Assembler {
	a := &Assembler{cfg: cfg, rc: rc, runner: runner, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble builds the package tree from whatever is on disk, produces the archive
// and publishes it.
func (a *Assembler) Assemble(ctx context.Context) (*models.PublishedPackage, error) {
	root := a.cfg.Paths.PackageRoot
	pk := a.cfg.Package

	for _, d := range pk.Skeleton {
		p := filepath.Join(root, a.rc.Expand(d))
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, errors.WrapError(err, errors.CategoryAssembly, "create package skeleton").
				Fatal().
				WithContext("path", p).
				Build()
		}
	}

	for _, m := range pk.Files {
		src, dst := a.rc.Expand(m.From), filepath.Join(root, a.rc.Expand(m.To))
		if err := fsutil.CopyFile(src, dst); err != nil {
			return nil, copyError(err, src, dst)
		}
		a.logger.Debug("Copied package file", logfields.Path(dst))
	}
	for _, m := range pk.Trees {
		src, dst := a.rc.Expand(m.From), filepath.Join(root, a.rc.Expand(m.To))
		if err := fsutil.CopyTree(src, dst); err != nil {
			return nil, copyError(err, src, dst)
		}
		a.logger.Debug("Copied package tree", logfields.Path(dst))
	}

	archive := pk.Archive
	if err := os.Remove(archive); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "remove previous archive").
			WithContext("path", archive).
			Build()
	}

	argv := a.rc.ExpandAll(pk.Builder)
	cmd := process.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Dir:     filepath.Dir(archive),
		Env:     a.rc.Environ(nil),
		Timeout: a.cfg.Timeouts.Package,
		Expect:  []string{archive},
	}
	a.logger.Info("Building package archive", logfields.Command(cmd.String()))
	if _, err := a.runner.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.CategoryAssembly, "package builder failed").
			Fatal().
			WithContext("command", cmd.String()).
			Build()
	}

	pkg, err := Publish(archive, a.cfg.Paths.PublishDir)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Package published",
		logfields.Path(pkg.Path),
		logfields.Digest(pkg.Digest),
		logfields.Size(pkg.Size))
	return pkg, nil
}

func copyError(err error, src, dst string) error {
	msg := "copy into package tree"
	if stderrors.Is(err, fs.ErrNotExist) {
		msg = "package source missing"
	}
	return errors.WrapError(err, errors.CategoryAssembly, msg).
		Fatal().
		WithContext("source", src).
		WithContext("destination", dst).
		Build()
}
