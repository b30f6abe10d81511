package eventstore

import (
	"context"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// Journal records a run's lifecycle in a Store and keeps an optional
// projection current as events are written.
type Journal struct {
	store      Store
	projection *RunHistoryProjection
}

var _ models.Journal = (*Journal)(nil)

// NewJournal returns a Journal writing to store. projection may be nil.
func NewJournal(store Store, projection *RunHistoryProjection) *Journal {
	return &Journal{store: store, projection: projection}
}

func (j *Journal) append(ctx context.Context, e Event) error {
	if err := j.store.Append(ctx, e.RunID(), e.Type(), e.Payload(), e.Metadata()); err != nil {
		return err
	}
	if j.projection != nil {
		j.projection.Apply(e)
	}
	return nil
}

// RunStarted implements models.Journal.
func (j *Journal) RunStarted(ctx context.Context, runID string, plan models.Plan) error {
	stages := make([]string, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		stages = append(stages, string(s))
	}
	e, err := NewRunStarted(runID, RunStartedData{Target: string(plan.Target), Init: plan.Init, Stages: stages})
	if err != nil {
		return err
	}
	return j.append(ctx, e)
}

// StageCompleted implements models.Journal.
func (j *Journal) StageCompleted(ctx context.Context, runID string, stage models.StageName, result models.StageResult, d time.Duration, stageErr error) error {
	data := StageCompletedData{Stage: string(stage), Result: string(result), DurationMS: d.Milliseconds()}
	if stageErr != nil {
		data.Error = stageErr.Error()
	}
	e, err := NewStageCompleted(runID, data)
	if err != nil {
		return err
	}
	return j.append(ctx, e)
}

// PackagePublished implements models.Journal.
func (j *Journal) PackagePublished(ctx context.Context, runID string, pkg models.PublishedPackage) error {
	e, err := NewPackagePublished(runID, PackagePublishedData{Path: pkg.Path, Digest: pkg.Digest, Size: pkg.Size})
	if err != nil {
		return err
	}
	return j.append(ctx, e)
}

// RunFinished implements models.Journal.
func (j *Journal) RunFinished(ctx context.Context, runID string, report *models.Report) error {
	e, err := NewRunFinished(runID, FinishedData(report))
	if err != nil {
		return err
	}
	return j.append(ctx, e)
}

// FinishedData condenses a report into its journal form.
func FinishedData(r *models.Report) RunFinishedData {
	d := RunFinishedData{
		Outcome:        string(r.Outcome),
		Summary:        r.Summary(),
		DurationMS:     r.Duration().Milliseconds(),
		StageDurations: make(map[string]int64, len(r.StageDurations)),
		Checkouts:      r.Checkouts,
		Skipped:        r.Skipped,
		ArtifactCount:  len(r.Artifacts),
	}
	for s, dur := range r.StageDurations {
		d.StageDurations[string(s)] = dur.Milliseconds()
	}
	for _, err := range r.Errors {
		d.Errors = append(d.Errors, err.Error())
	}
	for _, w := range r.Warnings {
		d.Warnings = append(d.Warnings, w.Error())
	}
	return d
}
