// Package pipeline runs a source, a chain of transforms and a sink.
//
// A run is strictly sequential: the source loads a table, every transform
// receives the previous output, the sink exports the last table. There are
// no retries and no partial success; the first failing stage aborts the run
// and the remaining stages are marked skipped. Pipelines are usually built
// from declarative definitions (see Definition and Registry) and executed
// through a Manager that keeps the finished runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"tabflow/internal/infrastructure"
	"tabflow/internal/sink"
	"tabflow/internal/source"
	"tabflow/internal/table"
	"tabflow/internal/transform"
)

// Pipeline is an ordered list of stages: one source, N transforms, one sink
type Pipeline struct {
	name       string
	source     source.Source
	transforms []transform.Transformer
	sink       sink.Sink

	logger   *slog.Logger
	tracer   *Tracer
	observer Observer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer sets the tracer used for spans and metrics
func WithTracer(tracer *Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithObserver sets the observer receiving run events
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// New creates a pipeline. The source and the sink are required.
func New(name string, src source.Source, transforms []transform.Transformer, snk sink.Sink, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, NewValidationError("source", "a pipeline needs a source")
	}
	if snk == nil {
		return nil, NewValidationError("sink", "a pipeline needs a sink")
	}
	for i, t := range transforms {
		if t == nil {
			return nil, NewValidationError(fmt.Sprintf("transforms[%d]", i), "nil transform")
		}
	}

	p := &Pipeline{
		name:       name,
		source:     src,
		transforms: transforms,
		sink:       snk,
		logger:     infrastructure.GetLogger(),
		tracer:     NewTracer(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = infrastructure.WithComponent(p.logger, "pipeline")
	return p, nil
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// Stages returns the stage names in execution order
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.transforms)+2)
	names = append(names, p.source.Name())
	for _, t := range p.transforms {
		names = append(names, t.Name())
	}
	return append(names, p.sink.Name())
}

// Run executes the pipeline under a fresh run ID
func (p *Pipeline) Run(ctx context.Context) error {
	_, err := p.Execute(ctx, uuid.New().String())
	return err
}

// Execute runs every stage in order and returns the final run state, which
// is never nil. The error, if any, is a *Error wrapping the stage failure.
func (p *Pipeline) Execute(ctx context.Context, runID string) (*RunState, error) {
	state := p.NewRunState(runID)
	return state, p.ExecuteRun(ctx, state)
}

// ExecuteRun runs the pipeline and records progress in state, which must
// come from NewRunState. Callers may read state concurrently.
func (p *Pipeline) ExecuteRun(ctx context.Context, state *RunState) error {
	runID := state.ID
	ctx = infrastructure.EnsureTraceID(ctx)

	ctx, span := p.tracer.StartRun(ctx, runID, p.name, len(state.Stages))
	state.Start()
	p.emit(ctx, state, EventRunStarted, nil, nil)
	p.logger.InfoContext(ctx, "run_started",
		slog.String("run_id", runID),
		slog.String("pipeline", p.name),
		slog.Int("stages", len(state.Stages)))

	err := p.execute(ctx, state)

	if err != nil {
		state.Fail(err)
		p.emit(ctx, state, EventRunFailed, nil, err)
		p.logger.ErrorContext(ctx, "run_failed",
			slog.String("run_id", runID),
			slog.String("pipeline", p.name),
			slog.String("error_type", string(GetErrorType(err))),
			slog.String("error", err.Error()))
	} else {
		state.Complete()
		p.emit(ctx, state, EventRunCompleted, nil, nil)
		p.logger.InfoContext(ctx, "run_completed",
			slog.String("run_id", runID),
			slog.String("pipeline", p.name),
			slog.Duration("duration", state.Duration()))
	}
	p.tracer.EndRun(ctx, span, p.name, state.Duration(), err)

	return err
}

// NewRunState creates the pending state of a run of this pipeline
func (p *Pipeline) NewRunState(runID string) *RunState {
	stages := make([]*StageState, 0, len(p.transforms)+2)
	stages = append(stages, NewStageState(0, p.source.Name(), StageKindSource))
	for i, t := range p.transforms {
		stages = append(stages, NewStageState(i+1, t.Name(), StageKindTransform))
	}
	stages = append(stages, NewStageState(len(p.transforms)+1, p.sink.Name(), StageKindSink))
	return NewRunState(runID, p.name, stages)
}

// execute folds the stages over the table
func (p *Pipeline) execute(ctx context.Context, state *RunState) error {
	last := len(state.Stages) - 1
	var current *table.Table

	for i := range state.Stages {
		name := state.Stage(i).Name
		if err := ctx.Err(); err != nil {
			p.skipRemaining(ctx, state, i, "run cancelled")
			return NewCancellationError(i, name, err)
		}

		rowsIn := 0
		if current != nil {
			rowsIn = current.Len()
		}

		next, err := p.runStage(ctx, state, i, rowsIn, func(ctx context.Context) (*table.Table, error) {
			switch i {
			case 0:
				return p.source.Load(ctx)
			case last:
				return current, p.sink.Export(ctx, current)
			default:
				return p.transforms[i-1].Transform(ctx, current)
			}
		})
		if err != nil {
			p.skipRemaining(ctx, state, i+1, "previous stage failed")
			return wrapStageError(i, name, err)
		}
		current = next
	}
	return nil
}

// runStage executes one stage with its span, state transitions and events
func (p *Pipeline) runStage(ctx context.Context, state *RunState, i int, rowsIn int, fn func(context.Context) (*table.Table, error)) (*table.Table, error) {
	started := state.updateStage(i, func(s *StageState) { s.start(rowsIn) })
	stageCtx, span := p.tracer.StartStage(ctx, state.ID, started)
	p.emit(stageCtx, state, EventStageStarted, &started, nil)

	begin := time.Now()
	out, err := p.call(stageCtx, state.ID, started, fn)
	if err == nil && out == nil {
		err = NewFatalError("stage returned no table", nil)
	}

	if err != nil {
		failed := state.updateStage(i, func(s *StageState) { s.fail(err) })
		p.tracer.EndStage(stageCtx, span, failed, err)
		p.emit(stageCtx, state, EventStageFailed, &failed, err)
		p.logger.ErrorContext(stageCtx, "stage_failed",
			slog.String("run_id", state.ID),
			slog.Int("stage_index", i),
			slog.String("stage", failed.Name),
			slog.String("error", err.Error()))
		return nil, err
	}

	done := state.updateStage(i, func(s *StageState) { s.complete(out.Len()) })
	p.tracer.EndStage(stageCtx, span, done, nil)
	p.emit(stageCtx, state, EventStageCompleted, &done, nil)
	p.logger.InfoContext(stageCtx, "stage_completed",
		slog.String("run_id", state.ID),
		slog.Int("stage_index", i),
		slog.String("stage", done.Name),
		slog.Int("rows_in", rowsIn),
		slog.Int("rows_out", out.Len()),
		slog.Duration("duration", time.Since(begin)))
	return out, nil
}

// call runs a stage body, turning a panic into a fatal error of the stage
func (p *Pipeline) call(ctx context.Context, runID string, stage StageState, fn func(context.Context) (*table.Table, error)) (out *table.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "stage_panicked",
				slog.String("run_id", runID),
				slog.Int("stage_index", stage.Index),
				slog.String("stage", stage.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out, err = nil, NewPanicError(stage.Index, stage.Name, r)
		}
	}()
	return fn(ctx)
}

func (p *Pipeline) skipRemaining(ctx context.Context, state *RunState, from int, reason string) {
	if from >= len(state.Stages) {
		return
	}
	for _, s := range state.skipFrom(from, reason) {
		s := s
		p.emit(ctx, state, EventStageSkipped, &s, nil)
	}
}

func (p *Pipeline) emit(ctx context.Context, state *RunState, typ EventType, stage *StageState, err error) {
	if p.observer == nil {
		return
	}
	state.mu.RLock()
	event := Event{
		Type:     typ,
		RunID:    state.ID,
		Pipeline: state.Pipeline,
		Status:   state.Status,
		Stage:    stage,
		Time:     time.Now(),
	}
	state.mu.RUnlock()
	if err != nil {
		event.Error = err.Error()
	}
	p.observer.OnEvent(ctx, event)
}
