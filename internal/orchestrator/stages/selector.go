package stages

import (
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// targetRow is one entry of the selection table.
type targetRow struct {
	components []models.Component
	// provision runs without --init only for rows that set this.
	provisionByDefault bool
}

var targetTable = map[models.Target]targetRow{
	models.TargetFull:         {components: models.Components(), provisionByDefault: true},
	models.TargetTunnel:       {components: []models.Component{models.ComponentTunnel}},
	models.TargetControlPlane: {components: []models.Component{models.ComponentControlPlane}},
}

// Plan computes the stage list and component set for target. It has no side effects.
//
// Every plan ends with assemble. Provision is included for a full run or when init
// is set; stages never repeat and always follow models.StageOrder.
func Plan(target models.Target, init bool) (models.Plan, error) {
	row, ok := targetTable[target]
	if !ok {
		return models.Plan{}, errors.ValidationError("unknown target").
			WithContext("target", string(target)).
			Build()
	}
	include := map[models.StageName]bool{
		models.StageProvision: row.provisionByDefault || init,
		models.StageSources:   len(row.components) > 0,
		models.StageBuild:     len(row.components) > 0,
		models.StageAssemble:  true,
	}
	plan := models.Plan{
		Target:     target,
		Init:       init,
		Components: append([]models.Component(nil), row.components...),
	}
	for _, s := range models.StageOrder {
		if include[s] {
			plan.Stages = append(plan.Stages, s)
		}
	}
	return plan, nil
}

// PlanFor parses the raw positional argument and computes its plan.
func PlanFor(rawTarget string, init bool) (models.Plan, error) {
	t, err := models.ParseTarget(rawTarget)
	if err != nil {
		return models.Plan{}, err
	}
	return Plan(t, init)
}

// Pipeline maps a plan to executable stage definitions.
func Pipeline(plan models.Plan) []models.StageDef {
	return models.NewPipeline().
		AddIf(plan.Has(models.StageProvision), models.StageProvision, StageProvision).
		AddIf(plan.Has(models.StageSources), models.StageSources, StageSources).
		AddIf(plan.Has(models.StageBuild), models.StageBuild, StageBuild).
		AddIf(plan.Has(models.StageAssemble), models.StageAssemble, StageAssemble).
		Build()
}
