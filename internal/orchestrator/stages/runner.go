package stages

import (
	"context"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// RunStages executes stages in order, recording timing and stopping on the first
// fatal error, which is returned as the *models.StageError naming the stage.
func RunStages(ctx context.Context, rs *models.RunState, stages []models.StageDef) error {
	log := rs.Logger.With(logfields.RunID(rs.RunID))
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := models.NewCanceledStageError(st.Name, ctx.Err())
			record(ctx, rs, st.Name, StageOutcome{Stage: st.Name, Error: se, Result: models.StageResultCanceled, Abort: true}, 0)
			return se
		default:
		}

		log.Info("Stage started", logfields.Stage(string(st.Name)))
		t0 := time.Now()
		err := st.Fn(ctx, rs)
		dur := time.Since(t0)

		out := ClassifyStageResult(st.Name, err)
		record(ctx, rs, st.Name, out, dur)

		attrs := []any{logfields.Stage(string(st.Name)), logfields.DurationMS(float64(dur.Milliseconds())), "result", string(out.Result)}
		switch {
		case out.Error == nil:
			log.Info("Stage completed", attrs...)
		case out.Abort:
			log.Error("Stage failed", append(attrs, logfields.Error(out.Error.Err))...)
		default:
			log.Warn("Stage completed with warnings", append(attrs, logfields.Error(out.Error.Err))...)
		}

		if out.Abort {
			return out.Error
		}
	}
	return nil
}

func record(ctx context.Context, rs *models.RunState, stage models.StageName, out StageOutcome, dur time.Duration) {
	var stageErr error
	if out.Error != nil {
		rs.Report.StageErrorKinds[stage] = out.Error.Kind
		stageErr = out.Error
	}
	rs.Report.RecordStageResult(stage, out.Result, dur, rs.Recorder)
	// The journal must still see a canceled stage, so it gets a context that outlives ctx.
	if err := rs.Journal.StageCompleted(context.WithoutCancel(ctx), rs.RunID, stage, out.Result, dur, stageErr); err != nil {
		rs.Logger.Warn("Failed to journal stage result", logfields.Stage(string(stage)), logfields.Error(err))
	}
}
