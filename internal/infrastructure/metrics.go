package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics holds the application metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Pipeline metrics
	RunsTotal     metric.Int64Counter
	RunDuration   metric.Float64Histogram
	ActiveRuns    metric.Int64UpDownCounter
	StagesTotal   metric.Int64Counter
	StageDuration metric.Float64Histogram
	RowsProcessed metric.Int64Counter
	RunErrors     metric.Int64Counter

	// Geocoding metrics
	GeocodeRequests metric.Int64Counter
}

// CreateBusinessMetrics registers the application instruments on meter
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	var m BusinessMetrics
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("Number of active HTTP requests")); err != nil {
		return nil, err
	}

	if m.RunsTotal, err = meter.Int64Counter("pipeline_runs_total",
		metric.WithDescription("Total number of pipeline runs")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("pipeline_run_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActiveRuns, err = meter.Int64UpDownCounter("pipeline_active_runs",
		metric.WithDescription("Number of pipeline runs in progress")); err != nil {
		return nil, err
	}
	if m.StagesTotal, err = meter.Int64Counter("pipeline_stages_total",
		metric.WithDescription("Total number of pipeline stages executed")); err != nil {
		return nil, err
	}
	if m.StageDuration, err = meter.Float64Histogram("pipeline_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.RowsProcessed, err = meter.Int64Counter("pipeline_rows_processed_total",
		metric.WithDescription("Total number of rows produced by pipeline stages")); err != nil {
		return nil, err
	}
	if m.RunErrors, err = meter.Int64Counter("pipeline_errors_total",
		metric.WithDescription("Total number of failed pipeline runs")); err != nil {
		return nil, err
	}

	if m.GeocodeRequests, err = meter.Int64Counter("geocode_requests_total",
		metric.WithDescription("Total number of reverse geocoding requests")); err != nil {
		return nil, err
	}

	return &m, nil
}

func statusAttr(success bool) attribute.KeyValue {
	if success {
		return attribute.String("status", "success")
	}
	return attribute.String("status", "failure")
}

// RecordRunMetrics records the outcome of a pipeline run
func RecordRunMetrics(ctx context.Context, m *BusinessMetrics, pipeline string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("pipeline", pipeline), statusAttr(err == nil)}
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.RunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		m.RunErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
	}
}

// RecordStageMetrics records the outcome of one pipeline stage
func RecordStageMetrics(ctx context.Context, m *BusinessMetrics, stageType string, duration time.Duration, rows int, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("stage_type", stageType), statusAttr(success)}
	m.StagesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if success && rows > 0 {
		m.RowsProcessed.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("stage_type", stageType)))
	}
}

// RecordActiveRunChange records changes in the number of runs in progress
func RecordActiveRunChange(ctx context.Context, m *BusinessMetrics, delta int64) {
	if m == nil {
		return
	}
	m.ActiveRuns.Add(ctx, delta)
}

// RecordHTTPRequest records one served HTTP request
func RecordHTTPRequest(ctx context.Context, m *BusinessMetrics, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGeocodeRequest records one reverse geocoding call
func RecordGeocodeRequest(ctx context.Context, m *BusinessMetrics, success bool) {
	if m == nil {
		return
	}
	m.GeocodeRequests.Add(ctx, 1, metric.WithAttributes(statusAttr(success)))
}
