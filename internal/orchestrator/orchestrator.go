package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/meshpack/internal/assemble"
	"git.home.luguber.info/inful/meshpack/internal/builder"
	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/eventstore"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/git"
	"git.home.luguber.info/inful/meshpack/internal/lock"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/metrics"
	"git.home.luguber.info/inful/meshpack/internal/notify"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/stages"
	"git.home.luguber.info/inful/meshpack/internal/process"
	"git.home.luguber.info/inful/meshpack/internal/provision"
	"git.home.luguber.info/inful/meshpack/internal/retry"
)

const notifyTimeout = 10 * time.Second

// Orchestrator runs packaging runs against one configuration.
type Orchestrator struct {
	cfg         *config.Config
	logger      *slog.Logger
	runner      process.Runner
	backend     git.Backend
	httpClient  *http.Client
	progress    io.Writer
	publisher   notify.Publisher
	environ     func() []string
	sleep       func(context.Context, time.Duration) error
	metricsFile string
	newRunID    func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the run and every collaborator.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRunner replaces the os/exec runner.
func WithRunner(r process.Runner) Option { return func(o *Orchestrator) { o.runner = r } }

// WithGitBackend replaces the backend selected by sources.backend.
func WithGitBackend(b git.Backend) Option { return func(o *Orchestrator) { o.backend = b } }

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option { return func(o *Orchestrator) { o.httpClient = c } }

// WithProgress sets where download progress bars are drawn. nil disables them.
func WithProgress(w io.Writer) Option { return func(o *Orchestrator) { o.progress = w } }

// WithPublisher replaces the NATS publisher derived from notify settings.
func WithPublisher(p notify.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

// WithEnviron sets the environment captured at the start of a run.
func WithEnviron(fn func() []string) Option { return func(o *Orchestrator) { o.environ = fn } }

// WithSleep replaces the retry backoff wait.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithMetricsFile overrides metrics.textfile. An empty path keeps the configured one.
func WithMetricsFile(path string) Option {
	return func(o *Orchestrator) {
		if path != "" {
			o.metricsFile = path
		}
	}
}

// New returns an Orchestrator for cfg.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		logger:      slog.Default(),
		environ:     os.Environ,
		metricsFile: cfg.Metrics.TextFile,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = process.NewExecRunner(cfg.Timeouts.Default, o.logger)
	}
	if o.publisher == nil {
		if p := notify.New(cfg.Notify, o.logger); p != nil {
			o.publisher = p
		}
	}
	return o
}

// Plan computes the plan for a target without side effects.
func (o *Orchestrator) Plan(target models.Target, init bool) (models.Plan, error) {
	return stages.Plan(target, init)
}

// Run executes one packaging run. The returned report is non-nil whenever the
// stages started; the error is the stage error that aborted the run.
func (o *Orchestrator) Run(ctx context.Context, target models.Target, init bool) (*models.Report, error) {
	plan, err := stages.Plan(target, init)
	if err != nil {
		return nil, err
	}

	lk, err := lock.Acquire(o.cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lk.Release(); rerr != nil {
			o.logger.Warn("Failed to release staging lock", logfields.Error(rerr))
		}
	}()

	runID := o.newRunID()
	log := o.logger.With(logfields.RunID(runID), logfields.Target(string(plan.Target)))
	rc := models.NewRunContext(models.CaptureEnv(o.environ()), o.cfg.RunVariables())
	recorder := metrics.NewPrometheusRecorder(nil)

	rs := o.runState(runID, plan, rc, recorder, log)
	journal, closeJournal := o.openJournal(log)
	defer closeJournal()
	rs.Journal = journal

	log.Info("Run started", "plan", plan.String())
	if jerr := journal.RunStarted(ctx, runID, plan); jerr != nil {
		log.Warn("Failed to journal run start", logfields.Error(jerr))
	}

	runErr := stages.RunStages(ctx, rs, stages.Pipeline(plan))
	report := rs.Report
	report.Finish(runErr)

	recorder.IncRunOutcome(string(plan.Target), string(report.Outcome))
	recorder.ObserveRunDuration(string(plan.Target), report.Duration())

	after := context.WithoutCancel(ctx)
	if jerr := journal.RunFinished(after, runID, report); jerr != nil {
		log.Warn("Failed to journal run result", logfields.Error(jerr))
	}
	o.writeMetrics(recorder, log)
	o.notify(after, report, log)

	if runErr != nil {
		log.Error("Run failed", "summary", report.Summary(), logfields.Error(runErr))
	} else {
		log.Info("Run completed", "summary", report.Summary())
	}
	return report, runErr
}

func (o *Orchestrator) runState(runID string, plan models.Plan, rc *models.RunContext, recorder metrics.Recorder, log *slog.Logger) *models.RunState {
	cfg := o.cfg
	runner := observedRunner{inner: o.runner, recorder: recorder}
	policy := retry.FromConfig(cfg.Retry)

	backend := o.backend
	if backend == nil {
		if cfg.Sources.Backend == config.SourceBackendGoGit {
			backend = git.NewGoGitBackend(log)
		} else {
			backend = git.NewCLIBackend(runner, rc.Environ(nil), cfg.Timeouts.Fetch)
		}
	}
	stagerOpts := []git.StagerOption{git.WithLogger(log), git.WithRetryHook(recorder.IncRetry)}
	provOpts := []provision.Option{
		provision.WithLogger(log),
		provision.WithRetryHook(recorder.IncRetry),
		provision.WithProgress(o.progress),
	}
	if o.httpClient != nil {
		provOpts = append(provOpts, provision.WithHTTPClient(o.httpClient))
	}
	if o.sleep != nil {
		stagerOpts = append(stagerOpts, git.WithSleep(o.sleep))
		provOpts = append(provOpts, provision.WithSleep(o.sleep))
	}

	rs := models.NewRunState(runID, cfg, plan, rc)
	rs.Logger = log
	rs.Runner = runner
	rs.Recorder = recorder
	rs.Stager = git.NewStager(backend, policy, stagerOpts...)
	rs.Provisioner = provision.New(cfg, rc, runner, policy, provOpts...)
	rs.Builder = builder.New(cfg, rc, runner, builder.WithLogger(log))
	rs.Assembler = assemble.New(cfg, rc, runner, assemble.WithLogger(log))
	return rs
}

// openJournal returns the SQLite journal, or a no-op journal when history is
// disabled or the database cannot be opened.
func (o *Orchestrator) openJournal(log *slog.Logger) (models.Journal, func()) {
	if o.cfg.History.Disabled {
		return models.NoopJournal{}, func() {}
	}
	store, err := eventstore.NewSQLiteStore(o.cfg.History.Path)
	if err != nil {
		log.Warn("Run history unavailable", logfields.Path(o.cfg.History.Path), logfields.Error(err))
		return models.NoopJournal{}, func() {}
	}
	return eventstore.NewJournal(store, nil), func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("Failed to close run history", logfields.Error(cerr))
		}
	}
}

func (o *Orchestrator) writeMetrics(recorder *metrics.PrometheusRecorder, log *slog.Logger) {
	if o.metricsFile == "" {
		return
	}
	if err := metrics.WriteTextFile(o.metricsFile, recorder.Registry()); err != nil {
		log.Warn("Failed to write metrics file", logfields.Path(o.metricsFile), logfields.Error(err))
		return
	}
	log.Debug("Wrote metrics file", logfields.Path(o.metricsFile))
}

func (o *Orchestrator) notify(ctx context.Context, report *models.Report, log *slog.Logger) {
	if o.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, report); err != nil {
		log.Warn("Failed to send run notification", logfields.Error(err))
	}
}

// History returns up to limit recent runs from the journal.
func History(ctx context.Context, cfg *config.Config, limit int) ([]*eventstore.RunSummary, error) {
	if cfg.History.Disabled {
		return nil, errors.ConfigError("run history is disabled").Build()
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		return nil, errors.NewError(errors.CategoryNotFound, "no run history yet").
			WithContext("path", cfg.History.Path).
			WithCause(err).
			Build()
	}
	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return eventstore.RecentRuns(ctx, store, limit)
}
