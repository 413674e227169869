package pipeline

import (
	"sync"
	"time"
)

// RunStatus is the overall status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the state of one pipeline run
type RunState struct {
	mu sync.RWMutex

	ID        string        `json:"id"`
	Pipeline  string        `json:"pipeline"`
	Status    RunStatus     `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Stages    []*StageState `json:"stages"`
	Error     string        `json:"error,omitempty"`
	ErrorType ErrorType     `json:"error_type,omitempty"`
}

// NewRunState creates a pending run with one pending state per stage
func NewRunState(id, pipeline string, stages []*StageState) *RunState {
	return &RunState{
		ID:        id,
		Pipeline:  pipeline,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Stages:    stages,
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed, or cancelled for cancellation errors
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.ErrorType = GetErrorType(err)
	if r.ErrorType == ErrorTypeCancellation {
		r.Status = RunStatusCancelled
	} else {
		r.Status = RunStatusFailed
	}
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// updateStage applies fn to stage i under the run lock and returns a copy
// of the result
func (r *RunState) updateStage(i int, fn func(*StageState)) StageState {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.Stages[i])
	return *r.Stages[i]
}

// skipFrom marks every pending stage from index i on as skipped
func (r *RunState) skipFrom(i int, reason string) []StageState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var skipped []StageState
	for _, s := range r.Stages[i:] {
		if s.Status == StageStatusPending {
			s.skip(reason)
			skipped = append(skipped, *s)
		}
	}
	return skipped
}

// Stage returns a copy of stage i
func (r *RunState) Stage(i int) StageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.Stages[i]
}

// Clone returns a deep copy safe to hand out
func (r *RunState) Clone() *RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stages := make([]*StageState, len(r.Stages))
	for i, s := range r.Stages {
		c := *s
		stages[i] = &c
	}
	c := &RunState{
		ID:        r.ID,
		Pipeline:  r.Pipeline,
		Status:    r.Status,
		StartTime: r.StartTime,
		Stages:    stages,
		Error:     r.Error,
		ErrorType: r.ErrorType,
	}
	if r.EndTime != nil {
		end := *r.EndTime
		c.EndTime = &end
	}
	return c
}

// IsComplete reports whether the run reached a terminal status
func (r *RunState) IsComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusCancelled
}
