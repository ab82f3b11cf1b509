package saga

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Repository errors.
var (
	ErrRunNotFound = errors.New("saga run not found")
)

// Repository persists saga runs.
type Repository interface {
	// Create stores a new run. Creating an existing run ID fails.
	Create(ctx context.Context, run *Run) error

	// Update overwrites the run's persisted state.
	Update(ctx context.Context, run *Run) error

	// Get returns the run for the request ID, or ErrRunNotFound.
	Get(ctx context.Context, requestID string) (*Run, error)

	// Due returns non-terminal runs whose wake-at time has passed,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Run, error)
}

// ErrRunExists is returned when creating a run that already exists.
var ErrRunExists = errors.New("saga run already exists")

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu   sync.Mutex
	runs map[string]*Run
}

// NewMemoryRepository creates an empty in-memory run repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[string]*Run)}
}

// Create stores a new run.
func (r *MemoryRepository) Create(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.RequestID]; ok {
		return ErrRunExists
	}
	cp := *run
	r.runs[run.RequestID] = &cp
	return nil
}

// Update overwrites the run.
func (r *MemoryRepository) Update(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.RequestID]; !ok {
		return ErrRunNotFound
	}
	cp := *run
	r.runs[run.RequestID] = &cp
	return nil
}

// Get returns the run for the request ID.
func (r *MemoryRepository) Get(_ context.Context, requestID string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[requestID]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// Due returns non-terminal runs whose wake-at time has passed.
func (r *MemoryRepository) Due(_ context.Context, now time.Time, limit int) ([]*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Run
	for _, run := range r.runs {
		if !run.Phase.Terminal() && !run.WakeAt.After(now) {
			cp := *run
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].WakeAt.Before(due[j].WakeAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

var _ Repository = (*MemoryRepository)(nil)
