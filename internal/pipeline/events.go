package pipeline

import (
	"context"
	"time"
)

// EventType identifies a run transition
type EventType string

const (
	EventRunStarted     EventType = "run:started"
	EventRunCompleted   EventType = "run:completed"
	EventRunFailed      EventType = "run:failed"
	EventStageStarted   EventType = "stage:started"
	EventStageCompleted EventType = "stage:completed"
	EventStageFailed    EventType = "stage:failed"
	EventStageSkipped   EventType = "stage:skipped"
)

// Event is a run or stage transition sent to observers
type Event struct {
	Type     EventType   `json:"type"`
	RunID    string      `json:"run_id"`
	Pipeline string      `json:"pipeline"`
	Status   RunStatus   `json:"status"`
	Stage    *StageState `json:"stage,omitempty"`
	Error    string      `json:"error,omitempty"`
	Time     time.Time   `json:"time"`
}

// Observer receives run events. OnEvent is called synchronously from the
// running pipeline and must not block.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, event Event)

// OnEvent implements Observer
func (f ObserverFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// Observers fans an event out to several observers
type Observers []Observer

// OnEvent implements Observer
func (o Observers) OnEvent(ctx context.Context, event Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ctx, event)
		}
	}
}
