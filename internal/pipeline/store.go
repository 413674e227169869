package pipeline

import (
	"sort"
	"sync"
)

// RunStore keeps run states
type RunStore interface {
	Save(state *RunState) error
	Get(id string) (*RunState, error)
	List() []*RunState
}

// MemoryRunStore is an in-memory RunStore. When full, the oldest finished
// run is evicted.
type MemoryRunStore struct {
	mu      sync.RWMutex
	runs    map[string]*RunState
	maxRuns int
}

// NewMemoryRunStore creates a store holding at most maxRuns runs; zero or
// less means unbounded
func NewMemoryRunStore(maxRuns int) *MemoryRunStore {
	return &MemoryRunStore{
		runs:    make(map[string]*RunState),
		maxRuns: maxRuns,
	}
}

// Save stores a run. The state is kept by reference so that a running
// pipeline stays observable.
func (s *MemoryRunStore) Save(state *RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[state.ID]; exists {
		return NewValidationError("id", "run "+state.ID+" already exists")
	}
	if s.maxRuns > 0 && len(s.runs) >= s.maxRuns {
		s.evictOldest()
	}
	s.runs[state.ID] = state
	return nil
}

// Get returns a copy of a run
func (s *MemoryRunStore) Get(id string) (*RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.runs[id]
	if !exists {
		return nil, NewNotFoundError(id)
	}
	return state.Clone(), nil
}

// List returns copies of every run, oldest first
func (s *MemoryRunStore) List() []*RunState {
	s.mu.RLock()
	result := make([]*RunState, 0, len(s.runs))
	for _, state := range s.runs {
		result = append(result, state.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// evictOldest drops the oldest finished run; running ones are kept
func (s *MemoryRunStore) evictOldest() {
	var oldest *RunState
	for _, state := range s.runs {
		if !state.IsComplete() {
			continue
		}
		if oldest == nil || state.Clone().StartTime.Before(oldest.Clone().StartTime) {
			oldest = state
		}
	}
	if oldest != nil {
		delete(s.runs, oldest.ID)
	}
}
