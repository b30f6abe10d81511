package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
)

// Event type names as stored in the journal.
const (
	TypeRunStarted       = "RunStarted"
	TypeStageCompleted   = "StageCompleted"
	TypePackagePublished = "PackagePublished"
	TypeRunFinished      = "RunFinished"
)

// RunStartedData records what a run was asked to do.
type RunStartedData struct {
	Target string   `json:"target"`
	Init   bool     `json:"init"`
	Stages []string `json:"stages"`
}

// StageCompletedData records one stage's result.
type StageCompletedData struct {
	Stage      string `json:"stage"`
	Result     string `json:"result"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// PackagePublishedData records the published archive.
type PackagePublishedData struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// RunFinishedData contains the key facts of a finished run's report.
type RunFinishedData struct {
	Outcome        string            `json:"outcome"`
	Summary        string            `json:"summary"`
	DurationMS     int64             `json:"duration_ms"`
	StageDurations map[string]int64  `json:"stage_durations_ms"`
	Checkouts      map[string]string `json:"checkouts,omitempty"`
	Skipped        []string          `json:"skipped,omitempty"`
	ArtifactCount  int               `json:"artifact_count"`
	Errors         []string          `json:"errors,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// TypedEvent is an Event carrying its decoded payload.
type TypedEvent[T any] struct {
	BaseEvent
	Data T
}

func newEvent[T any](runID, eventType string, data T) (*TypedEvent[T], error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &TypedEvent[T]{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      eventType,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Data: data,
	}, nil
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, data RunStartedData) (*TypedEvent[RunStartedData], error) {
	return newEvent(runID, TypeRunStarted, data)
}

// NewStageCompleted creates a StageCompleted event.
func NewStageCompleted(runID string, data StageCompletedData) (*TypedEvent[StageCompletedData], error) {
	return newEvent(runID, TypeStageCompleted, data)
}

// NewPackagePublished creates a PackagePublished event.
func NewPackagePublished(runID string, data PackagePublishedData) (*TypedEvent[PackagePublishedData], error) {
	return newEvent(runID, TypePackagePublished, data)
}

// NewRunFinished creates a RunFinished event.
func NewRunFinished(runID string, data RunFinishedData) (*TypedEvent[RunFinishedData], error) {
	return newEvent(runID, TypeRunFinished, data)
}
