package orchestrator

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/assemble"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/lock"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process/processtest"
	"git.home.luguber.info/inful/meshpack/internal/testutil"
)

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*models.Report
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, r *models.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return p.err
}

type fixture struct {
	ws        *testutil.Workspace
	runner    *processtest.Runner
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	r := processtest.New()
	testutil.InstallFakeTools(r, ws.Config)
	return &fixture{ws: ws, runner: r, publisher: &recordingPublisher{}}
}

func (f *fixture) orchestrator(opts ...Option) *Orchestrator {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRunner(f.runner),
		WithPublisher(f.publisher),
		WithEnviron(func() []string { return []string{"PATH=/usr/bin:/bin", "HOME=" + f.ws.Root} }),
	}
	return New(f.ws.Config, append(base, opts...)...)
}

func TestRunFullInit(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config

	report, err := f.orchestrator().Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, models.OutcomeSuccess, report.Outcome)
	for _, s := range []models.StageName{models.StageProvision, models.StageSources, models.StageBuild, models.StageAssemble} {
		assert.Equal(t, models.StageResultSuccess, report.StageResults[s], "stage %s", s)
	}

	assert.GreaterOrEqual(t, len(report.ArtifactsOf(models.ArtifactLibrary)), 4)
	assert.Len(t, report.ArtifactsOf(models.ArtifactToolchain), 1)
	assert.Len(t, report.ArtifactsOf(models.ArtifactCheckout), 2)
	assert.Len(t, report.ArtifactsOf(models.ArtifactBinary), 5)
	assert.Len(t, report.ArtifactsOf(models.ArtifactArchive), 1)
	assert.Equal(t, map[string]string{"tinc": "cloned", "dnetnode": "cloned"}, report.Checkouts)

	require.NotNil(t, report.Package)
	assert.Equal(t, filepath.Join(cfg.Paths.PublishDir, "dnet.deb"), report.Package.Path)
	digest, err := assemble.Verify(report.Package.Path)
	require.NoError(t, err)
	assert.Equal(t, report.Package.Digest, digest)

	tree := testutil.NewFileAssertions(t, cfg.Paths.PackageRoot)
	tree.AssertFileExists("opt/dnet/tinc/lib/libssl.so.1.1")
	tree.AssertFileExists("opt/dnet/tinc/lib/libreadline.so.8")
	tree.AssertFileExists("opt/dnet/tinc/lib/liblzo2.so.2")
	tree.AssertFileExists("opt/dnet/tinc/tincd")
	tree.AssertFileExists("opt/dnet/settings.toml")

	require.Len(t, f.publisher.reports, 1)
	assert.Same(t, report, f.publisher.reports[0])
}

func TestRunTunnelAfterFullSyncsCheckout(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	_, err := o.Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.TargetTunnel, false)
	require.NoError(t, err)

	assert.NotContains(t, report.StageResults, models.StageProvision)
	assert.Equal(t, map[string]string{"tinc": "synced"}, report.Checkouts)
	assert.Empty(t, report.ArtifactsOf(models.ArtifactLibrary))
	require.NotNil(t, report.Package)

	pulls := 0
	for _, c := range f.runner.CallsTo("git") {
		if len(c.Args) > 0 && c.Args[0] == "pull" {
			pulls++
		}
	}
	assert.Equal(t, 1, pulls)
}

func TestRunFullWithoutInitReusesStagedDependencies(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	first, err := o.Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)
	require.NotNil(t, first.Package)
	assert.Equal(t, map[string]string{"tinc": "cloned", "dnetnode": "cloned"}, first.Checkouts)
	configures := len(f.runner.CallsTo("config"))

	report, err := o.Run(context.Background(), models.TargetFull, false)
	require.NoError(t, err)

	assert.Contains(t, report.Skipped, "openssl")
	assert.Contains(t, report.Skipped, "readline")
	assert.Contains(t, report.Skipped, "toolchain")
	assert.Equal(t, configures, len(f.runner.CallsTo("config")), "openssl must not be rebuilt")
	assert.Equal(t, map[string]string{"tinc": "synced", "dnetnode": "synced"}, report.Checkouts)
	require.NotNil(t, report.Package)
	_, err = assemble.Verify(report.Package.Path)
	require.NoError(t, err)
}

func TestRunBuildFailureStopsBeforeAssemble(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config
	f.runner.Handle("cargo", processtest.Fail(101, "error[E0308]: mismatched types"))

	report, err := f.orchestrator().Run(context.Background(), models.TargetControlPlane, false)
	require.Error(t, err)
	require.NotNil(t, report)

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageBuild, se.Stage)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	assert.Contains(t, err.Error(), "build")

	assert.Equal(t, models.OutcomeFailed, report.Outcome)
	assert.NotContains(t, report.StageResults, models.StageAssemble)
	assert.Empty(t, f.runner.CallsTo("dpkg-deb"))
	testutil.NewFileAssertions(t, cfg.Paths.PublishDir).AssertNoFile("dnet.deb")

	require.Len(t, f.publisher.reports, 1)
	assert.Equal(t, models.OutcomeFailed, f.publisher.reports[0].Outcome)
}

func TestRunTunnelOnFreshRootFailsAtAssemble(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config

	report, err := f.orchestrator().Run(context.Background(), models.TargetTunnel, false)
	require.Error(t, err)

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageAssemble, se.Stage)
	assert.True(t, errors.HasCategory(err, errors.CategoryAssembly))
	assert.Contains(t, err.Error(), "package source missing")

	assert.Equal(t, models.StageResultSuccess, report.StageResults[models.StageBuild])
	assert.Nil(t, report.Package)
	assert.Empty(t, f.runner.CallsTo("dpkg-deb"))
	testutil.NewFileAssertions(t, cfg.Paths.PublishDir).AssertNoFile("dnet.deb")
}

func TestRunMissingBuildArtifactFailsBeforeAssemble(t *testing.T) {
	f := newFixture(t)
	// make exits zero without producing the tunnel binaries.
	f.runner.Handle("make", nil)

	report, err := f.orchestrator().Run(context.Background(), models.TargetTunnel, false)
	require.Error(t, err)

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageBuild, se.Stage)
	assert.NotContains(t, report.StageResults, models.StageAssemble)
}

func TestRunStaleArtifactIsPackaged(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config
	o := f.orchestrator()

	_, err := o.Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	// A later control-plane run whose cargo build leaves the old binaries in place
	// still packages them.
	stale := filepath.Join(cfg.Sources.ControlPlane.Path, "target/release/dnet")
	require.NoError(t, os.WriteFile(stale, []byte("stale dnet"), 0o755))
	f.runner.Handle("cargo", nil)

	report, err := o.Run(context.Background(), models.TargetControlPlane, false)
	require.NoError(t, err)
	require.NotNil(t, report.Package)
	testutil.NewFileAssertions(t, cfg.Paths.PackageRoot).AssertFileContains("opt/dnet/dnet", "stale dnet")
}

func TestRunControlPlanePackagesStaleTunnelOutput(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config
	o := f.orchestrator()

	_, err := o.Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	// The tunnel output left by the earlier run is packaged alongside freshly
	// built control-plane binaries.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.TunnelOut, "tincd"), []byte("stale tincd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Sources.ControlPlane.Path, "target/release/dnet"), []byte("old dnet"), 0o755))
	makes := len(f.runner.CallsTo("make"))

	report, err := o.Run(context.Background(), models.TargetControlPlane, false)
	require.NoError(t, err)
	require.NotNil(t, report.Package)
	assert.Len(t, f.runner.CallsTo("make"), makes, "tunnel is not rebuilt")

	testutil.NewFileAssertions(t, cfg.Paths.PackageRoot).
		AssertFileContains("opt/dnet/tinc/tincd", "stale tincd").
		AssertFileContains("opt/dnet/dnet", "built by cargo")
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	held, err := lock.Acquire(f.ws.Config.Paths.StateDir)
	require.NoError(t, err)
	defer held.Release()

	report, err := f.orchestrator().Run(context.Background(), models.TargetFull, false)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, stderrors.Is(err, lock.ErrLocked))
	assert.Empty(t, f.runner.Calls())
}

func TestRunUnknownTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator().Run(context.Background(), models.Target("bogus"), false)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orchestrator().Run(ctx, models.TargetFull, true)
	require.Error(t, err)
	assert.Equal(t, models.OutcomeCanceled, report.Outcome)
	assert.Equal(t, models.StageResultCanceled, report.StageResults[models.StageProvision])
	assert.Empty(t, f.runner.Calls())
}

func TestRunJournalsHistory(t *testing.T) {
	f := newFixture(t)
	cfg := f.ws.Config
	cfg.History.Disabled = false
	cfg.History.Path = filepath.Join(cfg.Paths.StateDir, "history.db")

	ok, err := f.orchestrator().Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	f.runner.Handle("cargo", processtest.Fail(101, "link error"))
	failed, err := f.orchestrator().Run(context.Background(), models.TargetControlPlane, false)
	require.Error(t, err)

	runs, err := History(context.Background(), cfg, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, failed.RunID, runs[0].RunID)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Equal(t, "build", runs[0].FailedStage)
	assert.Equal(t, "control-plane", runs[0].Target)

	assert.Equal(t, ok.RunID, runs[1].RunID)
	assert.Equal(t, "success", runs[1].Status)
	require.NotNil(t, runs[1].Package)
	assert.Equal(t, ok.Package.Digest, runs[1].Package.Digest)
	assert.Len(t, runs[1].Stages, 4)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t)
	_, err := History(context.Background(), f.ws.Config, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestRunWritesMetricsFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.ws.Root, "metrics", "meshpack.prom")

	_, err := f.orchestrator(WithMetricsFile(path)).Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `meshpack_run_outcomes_total{outcome="success",target="full"} 1`)
	assert.Contains(t, text, `meshpack_stage_results_total{result="success",stage="assemble"} 1`)
	assert.Contains(t, text, `meshpack_command_duration_seconds_count{command="dpkg-deb",result="success"} 1`)
	assert.Contains(t, text, "meshpack_package_size_bytes")
}

func TestRunCountsRetries(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.ws.Root, "meshpack.prom")
	f.ws.Mirror.FailNext(testutil.ReadlineArchivePath, 1)

	_, err := f.orchestrator(WithMetricsFile(path)).Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `meshpack_retries_total{op="download"} 1`)
}

func TestRunToleratesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.NetworkError("connect to NATS").Build()

	report, err := f.orchestrator().Run(context.Background(), models.TargetFull, true)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, report.Outcome)
	assert.Len(t, f.publisher.reports, 1)
}
