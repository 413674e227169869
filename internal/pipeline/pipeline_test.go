package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/internal/table"
	"tabflow/internal/transform"
)

type fakeSource struct {
	tbl *table.Table
	err error
}

func (f *fakeSource) Name() string { return "fake_source" }

func (f *fakeSource) Load(context.Context) (*table.Table, error) {
	return f.tbl, f.err
}

type fakeSink struct {
	got   *table.Table
	err   error
	calls int
}

func (f *fakeSink) Name() string { return "fake_sink" }

func (f *fakeSink) Export(_ context.Context, t *table.Table) error {
	f.calls++
	f.got = t
	return f.err
}

type funcTransform struct {
	name string
	fn   func(context.Context, *table.Table) (*table.Table, error)
}

func (f funcTransform) Name() string { return f.name }

func (f funcTransform) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	return f.fn(ctx, t)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

func stationTable() *table.Table {
	return table.MustNew([]string{"numer_sta", "t"}, []table.Row{
		{"numer_sta": table.Text("07005"), "t": table.Text("280.1")},
		{"numer_sta": table.Text("07015"), "t": table.Text("279.9")},
		{"numer_sta": table.Text("07020"), "t": table.Text("mq")},
	})
}

func TestPipelineExecute(t *testing.T) {
	snk := &fakeSink{}
	filter, err := transform.NewFilter(transform.Predicate{
		Column: "numer_sta", Operator: transform.OpNotEqual, Literal: "07020",
	})
	require.NoError(t, err)

	rec := &recorder{}
	p, err := New("synop", &fakeSource{tbl: stationTable()},
		[]transform.Transformer{filter, transform.NewProject("t")}, snk,
		WithObserver(rec))
	require.NoError(t, err)
	assert.Equal(t, "synop", p.Name())
	assert.Equal(t, []string{"fake_source", "filter", "project", "fake_sink"}, p.Stages())

	state, err := p.Execute(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, state.Status)
	assert.True(t, state.IsComplete())
	require.Len(t, state.Stages, 4)

	expected := []struct {
		kind    StageKind
		rowsIn  int
		rowsOut int
	}{
		{StageKindSource, 0, 3},
		{StageKindTransform, 3, 2},
		{StageKindTransform, 2, 2},
		{StageKindSink, 2, 2},
	}
	for i, exp := range expected {
		s := state.Stages[i]
		assert.Equal(t, StageStatusCompleted, s.Status, "stage %d", i)
		assert.Equal(t, exp.kind, s.Kind, "stage %d", i)
		assert.Equal(t, exp.rowsIn, s.RowsIn, "stage %d", i)
		assert.Equal(t, exp.rowsOut, s.RowsOut, "stage %d", i)
	}

	require.Equal(t, 1, snk.calls)
	assert.Equal(t, []string{"t"}, snk.got.Columns())
	assert.Equal(t, 2, snk.got.Len())

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventStageStarted, EventStageCompleted,
		EventStageStarted, EventStageCompleted,
		EventStageStarted, EventStageCompleted,
		EventStageStarted, EventStageCompleted,
		EventRunCompleted,
	}, rec.types())
}

func TestPipelineStageFailure(t *testing.T) {
	snk := &fakeSink{}
	rec := &recorder{}
	mean := funcTransform{name: "center", fn: transform.NewCenter("t").Transform}

	p, err := New("synop", &fakeSource{tbl: stationTable()},
		[]transform.Transformer{mean, transform.NewProject("t")}, snk,
		WithObserver(rec))
	require.NoError(t, err)

	state, err := p.Execute(context.Background(), "run-2")
	require.Error(t, err)

	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, ErrorTypeExecution, pErr.Type)
	assert.Equal(t, 1, pErr.StageIndex)
	assert.Equal(t, "center", pErr.Stage)

	// the engine error stays reachable
	assert.ErrorIs(t, err, table.ErrParse)
	var tErr *table.Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "t", tErr.Column)

	assert.Equal(t, RunStatusFailed, state.Status)
	assert.Equal(t, ErrorTypeExecution, state.ErrorType)
	assert.Equal(t, StageStatusCompleted, state.Stages[0].Status)
	assert.Equal(t, StageStatusFailed, state.Stages[1].Status)
	assert.NotEmpty(t, state.Stages[1].Error)
	assert.Equal(t, StageStatusSkipped, state.Stages[2].Status)
	assert.Equal(t, StageStatusSkipped, state.Stages[3].Status)
	assert.Zero(t, snk.calls)

	types := rec.types()
	assert.Equal(t, EventRunFailed, types[len(types)-1])
	assert.Contains(t, types, EventStageSkipped)
}

func TestPipelineSourceAndSinkErrors(t *testing.T) {
	boom := errors.New("disk on fire")

	p, err := New("src", &fakeSource{err: boom}, nil, &fakeSink{})
	require.NoError(t, err)
	state, err := p.Execute(context.Background(), "run-src")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StageStatusFailed, state.Stages[0].Status)
	assert.Equal(t, StageStatusSkipped, state.Stages[1].Status)

	p, err = New("snk", &fakeSource{tbl: stationTable()}, nil, &fakeSink{err: boom})
	require.NoError(t, err)
	state, err = p.Execute(context.Background(), "run-snk")
	assert.ErrorIs(t, err, boom)
	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, 1, pErr.StageIndex)
	assert.Equal(t, "fake_sink", pErr.Stage)
	assert.Equal(t, StageStatusFailed, state.Stages[1].Status)
}

func TestPipelineStagePanic(t *testing.T) {
	snk := &fakeSink{}
	rec := &recorder{}
	broken := funcTransform{name: "broken", fn: func(context.Context, *table.Table) (*table.Table, error) {
		var rows []table.Row
		_ = rows[3]
		return nil, nil
	}}

	p, err := New("panics", &fakeSource{tbl: stationTable()}, []transform.Transformer{broken}, snk,
		WithObserver(rec))
	require.NoError(t, err)

	var state *RunState
	require.NotPanics(t, func() {
		state, err = p.Execute(context.Background(), "run-panic")
	})
	require.Error(t, err)

	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, ErrorTypeFatal, pErr.Type)
	assert.Equal(t, 1, pErr.StageIndex)
	assert.Equal(t, "broken", pErr.Stage)
	assert.Contains(t, err.Error(), "index out of range")

	assert.Equal(t, RunStatusFailed, state.Status)
	assert.Equal(t, StageStatusFailed, state.Stages[1].Status)
	assert.Equal(t, StageStatusSkipped, state.Stages[2].Status)
	assert.Zero(t, snk.calls)
	assert.Equal(t, EventRunFailed, rec.types()[len(rec.types())-1])
}

func TestPipelineNilTable(t *testing.T) {
	p, err := New("nil", &fakeSource{}, nil, &fakeSink{})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), "run-nil")
	assert.Equal(t, ErrorTypeFatal, GetErrorType(err))
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	snk := &fakeSink{}
	stop := funcTransform{name: "stop", fn: func(_ context.Context, t *table.Table) (*table.Table, error) {
		cancel()
		return t, nil
	}}

	p, err := New("cancel", &fakeSource{tbl: stationTable()},
		[]transform.Transformer{stop, transform.NewProject("t")}, snk)
	require.NoError(t, err)

	state, err := p.Execute(ctx, "run-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, RunStatusCancelled, state.Status)
	assert.Equal(t, StageStatusCompleted, state.Stages[1].Status)
	assert.Equal(t, StageStatusSkipped, state.Stages[2].Status)
	assert.Equal(t, StageStatusSkipped, state.Stages[3].Status)
	assert.Zero(t, snk.calls)
}

func TestPipelineDoesNotMutateSource(t *testing.T) {
	tbl := stationTable()
	p, err := New("pure", &fakeSource{tbl: tbl},
		[]transform.Transformer{transform.NewDropMissing(table.Text("mq"))}, &fakeSink{})
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, table.Text("mq"), tbl.Row(2).Get("t"))
}

func TestNewValidation(t *testing.T) {
	src := &fakeSource{tbl: stationTable()}

	_, err := New("x", nil, nil, &fakeSink{})
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))

	_, err = New("x", src, nil, nil)
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))

	_, err = New("x", src, []transform.Transformer{nil}, &fakeSink{})
	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "transforms[0]", pErr.Context["field"])
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("name", "required"), ErrorTypeValidation},
		{"not found", NewNotFoundError("x"), ErrorTypeNotFound},
		{"canceled", context.Canceled, ErrorTypeCancellation},
		{"deadline", context.DeadlineExceeded, ErrorTypeCancellation},
		{"plain", errors.New("x"), ErrorTypeExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorType(tt.err))
		})
	}
}
