package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/git"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

type journalEvent struct {
	stage  models.StageName
	result models.StageResult
}

type recordingJournal struct {
	models.NoopJournal
	stages    []journalEvent
	published int
}

func (j *recordingJournal) StageCompleted(_ context.Context, _ string, stage models.StageName, result models.StageResult, _ time.Duration, _ error) error {
	j.stages = append(j.stages, journalEvent{stage, result})
	return nil
}

func (j *recordingJournal) PackagePublished(context.Context, string, models.PublishedPackage) error {
	j.published++
	return nil
}

func newState(t *testing.T, plan models.Plan) (*models.RunState, *recordingJournal) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	rs := models.NewRunState("run-1", cfg, plan, models.NewRunContext(nil, cfg.RunVariables()))
	j := &recordingJournal{}
	rs.Journal = j
	return rs, j
}

func def(name models.StageName, fn models.Stage) models.StageDef {
	return models.StageDef{Name: name, Fn: fn}
}

func TestRunStages_StopsAtFirstFatal(t *testing.T) {
	rs, j := newState(t, models.Plan{Target: models.TargetFull})
	var ran []models.StageName
	step := func(name models.StageName, err error) models.StageDef {
		return def(name, func(context.Context, *models.RunState) error {
			ran = append(ran, name)
			return err
		})
	}
	err := RunStages(context.Background(), rs, []models.StageDef{
		step(models.StageProvision, nil),
		step(models.StageSources, models.NewWarnStageError(models.StageSources, errors.New("slow mirror"))),
		step(models.StageBuild, errors.New("make exited 2")),
		step(models.StageAssemble, nil),
	})

	require.Error(t, err)
	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageBuild, se.Stage)
	assert.Equal(t, models.StageErrorFatal, se.Kind)
	assert.Equal(t, []models.StageName{models.StageProvision, models.StageSources, models.StageBuild}, ran)

	assert.Equal(t, models.StageResultSuccess, rs.Report.StageResults[models.StageProvision])
	assert.Equal(t, models.StageResultWarning, rs.Report.StageResults[models.StageSources])
	assert.Equal(t, models.StageResultFatal, rs.Report.StageResults[models.StageBuild])
	_, assembled := rs.Report.StageResults[models.StageAssemble]
	assert.False(t, assembled)
	assert.Len(t, j.stages, 3)
}

func TestRunStages_Canceled(t *testing.T) {
	rs, j := newState(t, models.Plan{Target: models.TargetFull})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RunStages(ctx, rs, []models.StageDef{def(models.StageProvision, func(context.Context, *models.RunState) error {
		called = true
		return nil
	})})

	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageErrorCanceled, se.Kind)
	assert.False(t, called)
	require.Len(t, j.stages, 1)
	assert.Equal(t, models.StageResultCanceled, j.stages[0].result)
}

func TestClassifyStageResult(t *testing.T) {
	assert.Equal(t, models.StageResultSuccess, ClassifyStageResult(models.StageBuild, nil).Result)

	raw := ClassifyStageResult(models.StageBuild, errors.New("x"))
	assert.True(t, raw.Abort)
	assert.Equal(t, models.StageBuild, raw.Error.Stage)

	warn := ClassifyStageResult(models.StageBuild, models.NewWarnStageError(models.StageBuild, errors.New("x")))
	assert.False(t, warn.Abort)
	assert.Equal(t, models.StageResultWarning, warn.Result)
}

type stubStager struct {
	outcomes map[string]git.Outcome
	err      error
	seen     []string
}

func (s *stubStager) Ensure(_ context.Context, co config.Checkout) (git.Outcome, error) {
	s.seen = append(s.seen, co.Name)
	return s.outcomes[co.Name], s.err
}

type stubBuilder struct {
	warn  error
	built []models.Component
}

func (b *stubBuilder) Build(_ context.Context, c models.Component) (models.StepReport, error) {
	b.built = append(b.built, c)
	rep := models.StepReport{Artifacts: []models.Artifact{{Kind: models.ArtifactBinary, Owner: string(c), Path: string(c)}}}
	if b.warn != nil {
		rep.Warnings = []error{b.warn}
	}
	return rep, nil
}

type stubAssembler struct{ pkg *models.PublishedPackage }

func (a stubAssembler) Assemble(context.Context) (*models.PublishedPackage, error) { return a.pkg, nil }

func TestStageSources_ComponentOrder(t *testing.T) {
	plan, err := Plan(models.TargetFull, false)
	require.NoError(t, err)
	rs, _ := newState(t, plan)
	st := &stubStager{outcomes: map[string]git.Outcome{"tinc": git.OutcomeCloned, "dnetnode": git.OutcomeSynced}}
	rs.Stager = st

	require.NoError(t, StageSources(context.Background(), rs))
	assert.Equal(t, []string{"tinc", "dnetnode"}, st.seen)
	assert.Equal(t, "cloned", rs.Report.Checkouts["tinc"])
	assert.Equal(t, "synced", rs.Report.Checkouts["dnetnode"])
	assert.Len(t, rs.Report.ArtifactsOf(models.ArtifactCheckout), 2)
}

func TestStageSources_FailureIsFatal(t *testing.T) {
	plan, err := Plan(models.TargetTunnel, false)
	require.NoError(t, err)
	rs, _ := newState(t, plan)
	rs.Stager = &stubStager{err: errors.New("auth failed")}

	err = StageSources(context.Background(), rs)
	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageSources, se.Stage)
	assert.Equal(t, models.StageErrorFatal, se.Kind)
}

func TestStageBuild_WarningsContinue(t *testing.T) {
	plan, err := Plan(models.TargetFull, false)
	require.NoError(t, err)
	rs, _ := newState(t, plan)
	b := &stubBuilder{warn: errors.New("rustup update failed")}
	rs.Builder = b

	err = StageBuild(context.Background(), rs)
	se, ok := models.AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, models.StageErrorWarning, se.Kind)
	assert.Equal(t, models.Components(), b.built)
	assert.Len(t, rs.Report.ArtifactsOf(models.ArtifactBinary), 2)
}

func TestStageAssemble_RecordsPackage(t *testing.T) {
	plan, err := Plan(models.TargetFull, false)
	require.NoError(t, err)
	rs, j := newState(t, plan)
	rs.Assembler = stubAssembler{pkg: &models.PublishedPackage{Path: "/mnt/dnet.deb", Size: 10}}

	require.NoError(t, StageAssemble(context.Background(), rs))
	require.NotNil(t, rs.Report.Package)
	assert.Equal(t, "/mnt/dnet.deb", rs.Report.Package.Path)
	assert.Len(t, rs.Report.ArtifactsOf(models.ArtifactArchive), 1)
	assert.Equal(t, 1, j.published)
}
