package stages

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// StageBuild builds every planned component, tunnel first.
func StageBuild(ctx context.Context, rs *models.RunState) error {
	var warnings []error
	for _, c := range rs.Plan.Components {
		rep, err := rs.Builder.Build(ctx, c)
		rs.Report.AddStepReport(rep)
		if err != nil {
			return stageFailure(ctx, models.StageBuild, err)
		}
		warnings = append(warnings, rep.Warnings...)
	}
	if len(warnings) > 0 {
		return models.NewWarnStageError(models.StageBuild, errors.Join(warnings...))
	}
	return nil
}
