package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tabflow/internal/infrastructure"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "tabflow.pipeline"

// Tracer records spans and metrics for runs and stages
type Tracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewTracer creates a tracer on the global tracer provider. metrics may be
// nil to record spans only.
func NewTracer(metrics *infrastructure.BusinessMetrics) *Tracer {
	return &Tracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// StartRun opens the span of a whole run
func (t *Tracer) StartRun(ctx context.Context, runID, pipeline string, stages int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("pipeline.name", pipeline),
			attribute.Int("pipeline.stages", stages),
		),
	)
	infrastructure.RecordActiveRunChange(ctx, t.metrics, 1)
	return ctx, span
}

// EndRun closes the span of a run and records its metrics
func (t *Tracer) EndRun(ctx context.Context, span trace.Span, pipeline string, duration time.Duration, err error) {
	defer span.End()

	infrastructure.RecordActiveRunChange(ctx, t.metrics, -1)
	infrastructure.RecordRunMetrics(ctx, t.metrics, pipeline, duration, err)

	span.SetAttributes(attribute.Float64("run.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetErrorType(err)))
		return
	}
	span.SetStatus(codes.Ok, "run completed")
}

// StartStage opens the span of one stage
func (t *Tracer) StartStage(ctx context.Context, runID string, stage StageState) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("pipeline.stage.%s", stage.Name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("stage.index", stage.Index),
			attribute.String("stage.name", stage.Name),
			attribute.String("stage.kind", string(stage.Kind)),
			attribute.Int("stage.rows_in", stage.RowsIn),
		),
	)
}

// EndStage closes the span of a stage and records its metrics
func (t *Tracer) EndStage(ctx context.Context, span trace.Span, stage StageState, err error) {
	defer span.End()

	infrastructure.RecordStageMetrics(ctx, t.metrics, stage.Name, stage.Duration(), stage.RowsOut, err == nil)

	span.SetAttributes(
		attribute.Int("stage.rows_out", stage.RowsOut),
		attribute.Float64("stage.duration_seconds", stage.Duration().Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		return
	}
	span.SetStatus(codes.Ok, "stage completed")
}
