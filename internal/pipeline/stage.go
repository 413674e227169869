package pipeline

import (
	"time"
)

// StageKind is the role of a stage in a pipeline
type StageKind string

const (
	StageKindSource    StageKind = "source"
	StageKindTransform StageKind = "transform"
	StageKindSink      StageKind = "sink"
)

// StageStatus represents the current status of a stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// IsTerminal reports whether the stage will not change status anymore
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusSkipped
}

// StageState is the runtime state of one stage. It is owned by its RunState,
// which serializes access.
type StageState struct {
	Index     int         `json:"index"`
	Name      string      `json:"name"`
	Kind      StageKind   `json:"kind"`
	Status    StageStatus `json:"status"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	RowsIn    int         `json:"rows_in"`
	RowsOut   int         `json:"rows_out"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewStageState creates a pending stage
func NewStageState(index int, name string, kind StageKind) *StageState {
	return &StageState{
		Index:  index,
		Name:   name,
		Kind:   kind,
		Status: StageStatusPending,
	}
}

func (s *StageState) start(rowsIn int) {
	now := time.Now()
	s.StartTime = &now
	s.Status = StageStatusActive
	s.RowsIn = rowsIn
}

func (s *StageState) complete(rowsOut int) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusCompleted
	s.RowsOut = rowsOut
}

func (s *StageState) fail(err error) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

func (s *StageState) skip(reason string) {
	s.Status = StageStatusSkipped
	s.Message = reason
}

// Duration returns how long the stage ran, or has been running
func (s *StageState) Duration() time.Duration {
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}
