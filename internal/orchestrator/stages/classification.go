package stages

import (
	"errors"

	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// StageOutcome normalized result of stage execution.
type StageOutcome struct {
	Stage  models.StageName
	Error  *models.StageError
	Result models.StageResult
	Abort  bool
}

// resultFromStageErrorKind maps a StageErrorKind to a StageResult.
func resultFromStageErrorKind(k models.StageErrorKind) models.StageResult {
	switch k {
	case models.StageErrorWarning:
		return models.StageResultWarning
	case models.StageErrorCanceled:
		return models.StageResultCanceled
	case models.StageErrorFatal:
		return models.StageResultFatal
	default:
		return models.StageResultFatal
	}
}

// ClassifyStageResult converts a raw error from a stage into a StageOutcome.
// An error that is not a *StageError is treated as fatal for that stage.
func ClassifyStageResult(stage models.StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: models.StageResultSuccess}
	}

	var se *models.StageError
	if !errors.As(err, &se) {
		se = models.NewFatalStageError(stage, err)
	}

	return StageOutcome{
		Stage:  stage,
		Error:  se,
		Result: resultFromStageErrorKind(se.Kind),
		Abort:  se.Kind == models.StageErrorFatal || se.Kind == models.StageErrorCanceled,
	}
}
