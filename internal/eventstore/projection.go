// Package eventstore journals run lifecycle events in SQLite and projects them
// into a run history.
package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// StatusRunning marks a run with no RunFinished event. A run killed without
// cleanup stays in this state.
const StatusRunning = "running"

// StageRecord is one stage as seen in the journal.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunSummary is the read model of one run.
type RunSummary struct {
	RunID       string                `json:"run_id"`
	Target      string                `json:"target"`
	Init        bool                  `json:"init"`
	Status      string                `json:"status"` // running, success, failed or canceled
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Duration    time.Duration         `json:"duration,omitempty"`
	Stages      []StageRecord         `json:"stages,omitempty"`
	FailedStage string                `json:"failed_stage,omitempty"`
	Error       string                `json:"error,omitempty"`
	Package     *PackagePublishedData `json:"package,omitempty"`
	Finished    *RunFinishedData      `json:"finished,omitempty"`
}

// RunHistoryProjection rebuilds run summaries from the journal.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	history []*RunSummary // newest first
	maxSize int
}

// NewRunHistoryProjection creates a projection over store keeping at most
// maxHistorySize runs.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild replays every event in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = nil
	for _, event := range events {
		p.applyLocked(event)
	}
	return nil
}

// Apply folds a single event into the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(event)
}

func (p *RunHistoryProjection) applyLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}
	summary, ok := p.runs[runID]
	if !ok {
		summary = &RunSummary{RunID: runID, Status: StatusRunning, StartedAt: event.Timestamp()}
		p.runs[runID] = summary
		p.addToHistoryLocked(summary)
	}

	switch event.Type() {
	case TypeRunStarted:
		var d RunStartedData
		if err := json.Unmarshal(event.Payload(), &d); err == nil {
			summary.Target = d.Target
			summary.Init = d.Init
		}
		summary.StartedAt = event.Timestamp()

	case TypeStageCompleted:
		var d StageCompletedData
		if err := json.Unmarshal(event.Payload(), &d); err == nil {
			summary.Stages = append(summary.Stages, StageRecord{
				Stage:    d.Stage,
				Result:   d.Result,
				Duration: time.Duration(d.DurationMS) * time.Millisecond,
				Error:    d.Error,
			})
			if d.Result == "fatal" || d.Result == "canceled" {
				summary.FailedStage = d.Stage
				summary.Error = d.Error
			}
		}

	case TypePackagePublished:
		var d PackagePublishedData
		if err := json.Unmarshal(event.Payload(), &d); err == nil {
			summary.Package = &d
		}

	case TypeRunFinished:
		var d RunFinishedData
		if err := json.Unmarshal(event.Payload(), &d); err == nil {
			summary.Status = d.Outcome
			summary.Duration = time.Duration(d.DurationMS) * time.Millisecond
			summary.Finished = &d
			if summary.Error == "" && len(d.Errors) > 0 {
				summary.Error = d.Errors[0]
			}
		}
		done := event.Timestamp()
		summary.CompletedAt = &done
	}
}

// addToHistoryLocked puts a newly seen run at the head of the bounded history
// and forgets runs that fall off its end. Events arrive in append order, so
// the newest run is the most recently seen one.
func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) <= p.maxSize {
		return
	}
	for _, dropped := range p.history[p.maxSize:] {
		delete(p.runs, dropped.RunID)
	}
	p.history = p.history[:p.maxSize]
}

// History returns the projected runs, newest first.
func (p *RunHistoryProjection) History() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*RunSummary, len(p.history))
	copy(out, p.history)
	return out
}

// Get returns a copy of one run's summary.
func (p *RunHistoryProjection) Get(runID string) (*RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// RecentRuns returns up to limit runs from store, newest first.
func RecentRuns(ctx context.Context, store Store, limit int) ([]*RunSummary, error) {
	p := NewRunHistoryProjection(store, limit)
	if err := p.Rebuild(ctx); err != nil {
		return nil, err
	}
	return p.History(), nil
}
