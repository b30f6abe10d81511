package models

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/metrics"
)

// RunOutcome is the final status of a run.
type RunOutcome string

const (
	OutcomeSuccess  RunOutcome = "success"
	OutcomeFailed   RunOutcome = "failed"
	OutcomeCanceled RunOutcome = "canceled"
)

// Report accumulates what happened during one run.
type Report struct {
	RunID   string
	Target  Target
	Init    bool
	Planned []StageName
	Start   time.Time
	End     time.Time

	StageDurations  map[StageName]time.Duration
	StageResults    map[StageName]StageResult
	StageErrorKinds map[StageName]StageErrorKind

	Artifacts []Artifact
	Checkouts map[string]string // checkout name -> cloned|synced
	Skipped   []string          // provisioning items reused from a previous run
	Warnings  []error
	Errors    []error // fatal errors causing the run to abort (at most one)
	Package   *PublishedPackage
	Outcome   RunOutcome
}

// NewReport starts a report for plan.
func NewReport(runID string, plan Plan) *Report {
	return &Report{
		RunID:           runID,
		Target:          plan.Target,
		Init:            plan.Init,
		Planned:         append([]StageName(nil), plan.Stages...),
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageResults:    make(map[StageName]StageResult),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		Checkouts:       make(map[string]string),
	}
}

// RecordStageResult stores a stage's result and duration and emits metrics (if recorder non-nil).
func (r *Report) RecordStageResult(stage StageName, res StageResult, d time.Duration, recorder metrics.Recorder) {
	r.StageResults[stage] = res
	r.StageDurations[stage] = d
	if recorder == nil {
		return
	}
	recorder.ObserveStageDuration(string(stage), d)
	switch res {
	case StageResultSuccess:
		recorder.IncStageResult(string(stage), metrics.ResultSuccess)
	case StageResultWarning:
		recorder.IncStageResult(string(stage), metrics.ResultWarning)
	case StageResultFatal:
		recorder.IncStageResult(string(stage), metrics.ResultFatal)
	case StageResultCanceled:
		recorder.IncStageResult(string(stage), metrics.ResultCanceled)
	case StageResultSkipped:
		recorder.IncStageResult(string(stage), metrics.ResultSkipped)
	}
}

// AddStepReport folds a provision or build step report into the run report.
func (r *Report) AddStepReport(sr StepReport) {
	r.Artifacts = append(r.Artifacts, sr.Artifacts...)
	r.Skipped = append(r.Skipped, sr.Skipped...)
	r.Warnings = append(r.Warnings, sr.Warnings...)
}

// ArtifactsOf returns the artifacts of one kind in production order.
func (r *Report) ArtifactsOf(kind ArtifactKind) []Artifact {
	var out []Artifact
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Finish sets the end time and derives the outcome from the run's terminal error.
func (r *Report) Finish(err error) {
	r.End = time.Now()
	switch {
	case err == nil:
		r.Outcome = OutcomeSuccess
	case isCanceled(err):
		r.Outcome = OutcomeCanceled
		r.Errors = append(r.Errors, err)
	default:
		r.Outcome = OutcomeFailed
		r.Errors = append(r.Errors, err)
	}
}

// Duration is the wall time of the run; zero until Finish is called.
func (r *Report) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Err returns the error that ended the run, if any.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Summary renders a one-line description for logs.
func (r *Report) Summary() string {
	s := fmt.Sprintf("run %s target=%s outcome=%s stages=%d artifacts=%d warnings=%d duration=%s",
		r.RunID, r.Target, r.Outcome, len(r.StageResults), len(r.Artifacts), len(r.Warnings), r.Duration().Round(time.Millisecond))
	if r.Package != nil {
		s += " package=" + r.Package.Path
	}
	return s
}

func isCanceled(err error) bool {
	if se, ok := AsStageError(err); ok && se.Kind == StageErrorCanceled {
		return true
	}
	return stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded)
}
