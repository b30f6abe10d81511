package models

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/git"
	"git.home.luguber.info/inful/meshpack/internal/metrics"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// SourceStager ensures a checkout exists and is current.
type SourceStager interface {
	Ensure(ctx context.Context, co config.Checkout) (git.Outcome, error)
}

// Provisioner stages native libraries and the language toolchain. When force is
// false, items whose artifacts already exist are skipped.
type Provisioner interface {
	Provision(ctx context.Context, force bool) (StepReport, error)
}

// ComponentBuilder compiles one component and verifies its binaries.
type ComponentBuilder interface {
	Build(ctx context.Context, c Component) (StepReport, error)
}

// Assembler lays out the package tree, invokes the package builder and publishes the archive.
type Assembler interface {
	Assemble(ctx context.Context) (*PublishedPackage, error)
}

// Journal persists run lifecycle events. Failures are reported to the caller,
// which logs them; they never fail a run.
type Journal interface {
	RunStarted(ctx context.Context, runID string, plan Plan) error
	StageCompleted(ctx context.Context, runID string, stage StageName, result StageResult, d time.Duration, stageErr error) error
	PackagePublished(ctx context.Context, runID string, pkg PublishedPackage) error
	RunFinished(ctx context.Context, runID string, report *Report) error
}

// NoopJournal discards every event.
type NoopJournal struct{}

func (NoopJournal) RunStarted(context.Context, string, Plan) error { return nil }
func (NoopJournal) StageCompleted(context.Context, string, StageName, StageResult, time.Duration, error) error {
	return nil
}
func (NoopJournal) PackagePublished(context.Context, string, PublishedPackage) error { return nil }
func (NoopJournal) RunFinished(context.Context, string, *Report) error               { return nil }

// RunState carries everything the stages of one run share.
type RunState struct {
	RunID   string
	Config  *config.Config
	Plan    Plan
	Context *RunContext
	Logger  *slog.Logger

	Runner      process.Runner
	Stager      SourceStager
	Provisioner Provisioner
	Builder     ComponentBuilder
	Assembler   Assembler

	Recorder metrics.Recorder
	Journal  Journal
	Report   *Report
}

// NewRunState returns a RunState with a fresh report and no-op observers.
// Callers fill in the collaborators.
func NewRunState(runID string, cfg *config.Config, plan Plan, rc *RunContext) *RunState {
	return &RunState{
		RunID:    runID,
		Config:   cfg,
		Plan:     plan,
		Context:  rc,
		Logger:   slog.Default(),
		Recorder: metrics.NoopRecorder{},
		Journal:  NoopJournal{},
		Report:   NewReport(runID, plan),
	}
}
