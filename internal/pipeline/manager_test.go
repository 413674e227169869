package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/internal/sink"
	"tabflow/internal/source"
	"tabflow/internal/table"
	"tabflow/internal/transform"
)

func simpleDefinition() *Definition {
	return &Definition{
		Name:   "copy",
		Source: StageSpec{Type: "csv", Path: "stations.csv", Separator: ","},
		Transforms: []StageSpec{
			{Type: "project", Columns: []string{"ID"}},
		},
		Sink: StageSpec{Type: "csv", Path: "ids.csv"},
	}
}

func TestManagerExecute(t *testing.T) {
	paths := setupPaths(t)
	writeData(t, paths, "stations.csv", "ID,Region\n07005,Hauts-de-France\n07015,Hauts-de-France\n")

	rec := &recorder{}
	m := NewManager(NewRegistry(paths), WithManagerObserver(rec))

	state, err := m.Execute(context.Background(), simpleDefinition())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.ID)
	assert.Equal(t, RunStatusCompleted, state.Status)
	assert.Equal(t, "ID\n07005\n07015\n", readOutput(t, paths, "ids.csv"))

	got, err := m.Get(state.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ID, got.ID)
	assert.Equal(t, RunStatusCompleted, got.Status)

	assert.Contains(t, rec.types(), EventRunCompleted)
	for _, e := range rec.events {
		assert.Equal(t, state.ID, e.RunID)
	}
}

func TestManagerStoresFailedRuns(t *testing.T) {
	paths := setupPaths(t)
	m := NewManager(NewRegistry(paths))

	// the source file does not exist: the run starts and fails
	state, err := m.Execute(context.Background(), simpleDefinition())
	require.Error(t, err)
	require.NotNil(t, state)
	assert.Equal(t, RunStatusFailed, state.Status)
	assert.Equal(t, ErrorTypeExecution, state.ErrorType)

	stored, err := m.Get(state.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, stored.Status)

	// build errors are not stored
	bad := simpleDefinition()
	bad.Sink.Type = "pdf"
	state, err = m.Execute(context.Background(), bad)
	assert.Nil(t, state)
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
	assert.Len(t, m.List(), 1)
}

func TestManagerPanickingStageFailsRun(t *testing.T) {
	paths := setupPaths(t)
	writeData(t, paths, "stations.csv", "ID,Region\n07005,Hauts-de-France\n")

	reg := NewRegistry(paths)
	require.NoError(t, reg.RegisterTransform("explode", func(context.Context, StageSpec) (transform.Transformer, error) {
		return funcTransform{name: "explode", fn: func(context.Context, *table.Table) (*table.Table, error) {
			panic("boom")
		}}, nil
	}))
	m := NewManager(reg)

	def := simpleDefinition()
	def.Transforms = []StageSpec{{Type: "explode"}}
	state, err := m.Execute(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeFatal, GetErrorType(err))
	assert.Equal(t, RunStatusFailed, state.Status)

	stored, err := m.Get(state.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, stored.Status)
	assert.NotNil(t, stored.EndTime)
}

func TestManagerGetUnknown(t *testing.T) {
	m := NewManager(NewRegistry(nil))

	_, err := m.Get("missing")
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))

	err = m.Cancel("missing")
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))
}

func TestManagerCancel(t *testing.T) {
	reg := NewRegistry(nil)
	started := make(chan string, 1)
	release := make(chan struct{})

	require.NoError(t, reg.RegisterSource("blocking", func(context.Context, StageSpec) (source.Source, error) {
		return blockingSource{release: release}, nil
	}))
	snk := &fakeSink{}
	require.NoError(t, reg.RegisterSink("memory", func(context.Context, StageSpec) (sink.Sink, error) {
		return snk, nil
	}))

	rec := &recorder{}
	m := NewManager(reg, WithManagerObserver(ObserverFunc(func(ctx context.Context, e Event) {
		rec.OnEvent(ctx, e)
		if e.Type == EventRunStarted {
			started <- e.RunID
		}
	})))

	done := make(chan *RunState, 1)
	go func() {
		state, _ := m.Execute(context.Background(), &Definition{
			Name:   "blocking",
			Source: StageSpec{Type: "blocking"},
			Sink:   StageSpec{Type: "memory"},
		})
		done <- state
	}()

	var runID string
	select {
	case runID = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}
	require.NoError(t, m.Cancel(runID))
	close(release)

	select {
	case state := <-done:
		require.NotNil(t, state)
		assert.Equal(t, RunStatusCancelled, state.Status)
		assert.Zero(t, snk.calls)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	err := m.Cancel(runID)
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
}

// blockingSource waits until released, or until its context is done
type blockingSource struct {
	release chan struct{}
}

func (blockingSource) Name() string { return "blocking" }

func (b blockingSource) Load(ctx context.Context) (*table.Table, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return table.MustNew(nil, nil), nil
	}
}

func TestMemoryRunStore(t *testing.T) {
	store := NewMemoryRunStore(2)

	first := NewRunState("a", "p", nil)
	first.Complete()
	require.NoError(t, store.Save(first))
	assert.Error(t, store.Save(first))

	time.Sleep(time.Millisecond)
	second := NewRunState("b", "p", nil)
	second.Start()
	require.NoError(t, store.Save(second))

	time.Sleep(time.Millisecond)
	third := NewRunState("c", "p", nil)
	require.NoError(t, store.Save(third))

	// "a" is the oldest finished run
	_, err := store.Get("a")
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))

	runs := store.List()
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)

	got, err := store.Get("b")
	require.NoError(t, err)
	got.Status = RunStatusFailed
	again, _ := store.Get("b")
	assert.Equal(t, RunStatusRunning, again.Status)
}
