package provision

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
	"git.home.luguber.info/inful/meshpack/internal/retry"
)

// Provisioner implements models.Provisioner.
type Provisioner struct {
	cfg     *config.Config
	rc      *models.RunContext
	runner  process.Runner
	policy  retry.Policy
	dl      *downloader
	logger  *slog.Logger
	onRetry func(op string)
	sleep   func(context.Context, time.Duration) error
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the Provisioner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
		p.dl.logger = l
	}
}

// WithHTTPClient replaces the client used for archive and installer downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provisioner) { p.dl.client = c }
}

// WithProgress renders download progress bars to w.
func WithProgress(w io.Writer) Option {
	return func(p *Provisioner) { p.dl.progress = w }
}

// WithRetryHook registers a callback invoked before every retried network attempt.
func WithRetryHook(fn func(op string)) Option {
	return func(p *Provisioner) { p.onRetry = fn }
}

// WithSleep replaces the backoff wait; tests use it to avoid real delays.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(p *Provisioner) { p.sleep = fn }
}

// New returns a Provisioner for cfg. External tools run through runner with
// environments derived from rc.
func New(cfg *config.Config, rc *models.RunContext, runner process.Runner, policy retry.Policy, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:    cfg,
		rc:     rc,
		runner: runner,
		policy: policy,
		logger: slog.Default(),
		dl:     &downloader{client: &http.Client{Timeout: cfg.Timeouts.Fetch}, logger: slog.Default()},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Provision runs every provisioning step in order. With force unset, dependencies
// and the toolchain whose artifacts are already staged are skipped.
func (p *Provisioner) Provision(ctx context.Context, force bool) (models.StepReport, error) {
	var rep models.StepReport

	libDir := p.cfg.Paths.LibDir
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return rep, errors.WrapError(err, errors.CategoryFileSystem, "create lib staging directory").
			WithContext("path", libDir).
			Build()
	}

	hl, err := p.stageHostLibs()
	rep.Merge(hl)
	if err != nil {
		return rep, err
	}

	for _, dep := range p.cfg.Provision.Dependencies {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		dr, err := p.provisionDependency(ctx, dep, force)
		rep.Merge(dr)
		if err != nil {
			return rep, err
		}
	}

	tr, err := p.provisionToolchain(ctx, force)
	rep.Merge(tr)
	return rep, err
}

// stageHostLibs copies each host library into the lib dir under its SONAME.
func (p *Provisioner) stageHostLibs() (models.StepReport, error) {
	var rep models.StepReport
	for _, lib := range p.cfg.Provision.HostLibs {
		dst := filepath.Join(p.cfg.Paths.LibDir, lib.Soname)
		if err := fsutil.CopyFile(lib.Source, dst); err != nil {
			if lib.Optional {
				w := errors.WrapError(err, errors.CategoryProvision, "optional host library not staged").
					Warning().
					WithContext("library", lib.Source).
					Build()
				p.logger.Warn("Optional host library unavailable", logfields.Path(lib.Source), logfields.Error(err))
				rep.Warnings = append(rep.Warnings, w)
				continue
			}
			return rep, errors.WrapError(err, errors.CategoryProvision, "stage host library").
				Fatal().
				WithContext("library", lib.Source).
				WithContext("soname", lib.Soname).
				Build()
		}
		p.logger.Debug("Staged host library", logfields.Path(dst))
		rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactLibrary, Owner: "host", Path: dst})
	}
	return rep, nil
}

func (p *Provisioner) retryOptions(op string, logger *slog.Logger) []retry.Option {
	opts := []retry.Option{
		retry.WithLogger(logger),
		retry.WithOnRetry(func(int, error) {
			if p.onRetry != nil {
				p.onRetry(op)
			}
		}),
	}
	if p.sleep != nil {
		opts = append(opts, retry.WithSleep(p.sleep))
	}
	return opts
}

// download fetches url to dst under the retry policy.
func (p *Provisioner) download(ctx context.Context, name, url, dst string) error {
	log := p.logger.With(logfields.Name(name))
	return p.policy.Do(ctx, "download "+name, func(ctx context.Context) error {
		_, err := p.dl.fetch(ctx, url, dst)
		return err
	}, p.retryOptions("download", log)...)
}

func (p *Provisioner) downloadDir() string {
	return filepath.Join(p.cfg.Paths.StateDir, "downloads")
}
