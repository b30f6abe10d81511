package orchestrator

import (
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/meshpack/internal/metrics"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// observedRunner records the duration of every external command.
type observedRunner struct {
	inner    process.Runner
	recorder metrics.Recorder
}

func (r observedRunner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	res, err := r.inner.Run(ctx, cmd)
	r.recorder.ObserveCommandDuration(filepath.Base(cmd.Name), res.Duration, err == nil)
	return res, err
}
