package stages

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// StageProvision stages host libraries, native dependencies and the toolchain.
// Tolerated failures (optional host libraries) turn the stage into a warning.
func StageProvision(ctx context.Context, rs *models.RunState) error {
	rep, err := rs.Provisioner.Provision(ctx, rs.Plan.ForceProvision())
	rs.Report.AddStepReport(rep)
	if err != nil {
		return stageFailure(ctx, models.StageProvision, err)
	}
	if len(rep.Warnings) > 0 {
		return models.NewWarnStageError(models.StageProvision, errors.Join(rep.Warnings...))
	}
	return nil
}

// stageFailure wraps err as a canceled stage error when ctx is done, else as fatal.
func stageFailure(ctx context.Context, stage models.StageName, err error) error {
	if ctx.Err() != nil {
		return models.NewCanceledStageError(stage, err)
	}
	return models.NewFatalStageError(stage, err)
}
