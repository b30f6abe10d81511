package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
	ResultSkipped  ResultLabel = "skipped"
)

// Recorder defines observability hooks for run and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(target string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(target, outcome string) // outcome: success|failed|canceled
	IncRetry(op string)
	ObserveCommandDuration(command string, d time.Duration, success bool)
	SetPackageSize(bytes int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)         {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                 {}
func (NoopRecorder) IncRunOutcome(string, string)                       {}
func (NoopRecorder) IncRetry(string)                                    {}
func (NoopRecorder) ObserveCommandDuration(string, time.Duration, bool) {}
func (NoopRecorder) SetPackageSize(int64)                               {}
