package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tabflow/internal/infrastructure"
)

// Manager builds and executes pipeline definitions and keeps their runs.
// Runs are executed one at a time.
type Manager struct {
	registry *Registry
	store    RunStore
	tracer   *Tracer
	observer Observer
	base     *slog.Logger
	logger   *slog.Logger

	execMu  sync.Mutex
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithStore replaces the default in-memory store
func WithStore(store RunStore) ManagerOption {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithManagerTracer sets the tracer passed to every pipeline
func WithManagerTracer(tracer *Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithManagerObserver sets the observer receiving the events of every run
func WithManagerObserver(observer Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = observer
	}
}

// WithManagerLogger sets the logger
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.base = logger
	}
}

// DefaultMaxRuns is the number of runs kept by the default store
const DefaultMaxRuns = 100

// NewManager creates a manager over a registry
func NewManager(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		store:    NewMemoryRunStore(DefaultMaxRuns),
		cancels:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = infrastructure.WithComponent(m.base, "manager")
	return m
}

// Registry returns the stage registry
func (m *Manager) Registry() *Registry { return m.registry }

// Execute builds the definition and runs it synchronously. Build failures
// return a nil state and are not stored; every started run is stored,
// whatever its outcome.
func (m *Manager) Execute(ctx context.Context, def *Definition) (*RunState, error) {
	p, err := m.registry.Build(ctx, def,
		WithLogger(m.base),
		WithTracer(m.tracer),
		WithObserver(m.observer))
	if err != nil {
		m.logger.WarnContext(ctx, "definition_rejected",
			slog.String("error_type", string(GetErrorType(err))),
			slog.String("error", err.Error()))
		return nil, err
	}

	state := p.NewRunState(uuid.New().String())
	if err := m.store.Save(state); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[state.ID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, state.ID)
		m.mu.Unlock()
		cancel()
	}()

	m.execMu.Lock()
	defer m.execMu.Unlock()

	err = p.ExecuteRun(runCtx, state)
	return state.Clone(), err
}

// Get returns a stored run
func (m *Manager) Get(id string) (*RunState, error) {
	return m.store.Get(id)
}

// List returns every stored run, oldest first
func (m *Manager) List() []*RunState {
	return m.store.List()
}

// Cancel stops a pending or running run
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		if _, err := m.store.Get(id); err != nil {
			return err
		}
		return NewValidationError("id", "run "+id+" is not running")
	}
	cancel()
	m.logger.Info("run_cancel_requested", slog.String("run_id", id))
	return nil
}
