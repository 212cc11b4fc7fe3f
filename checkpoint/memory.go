package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketbrief/types"
)

// MemoryStore is an in-process Store for tests and demos. It mirrors the
// Redis store's semantics (single-record upserts, latest-run pointer) but
// does not survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*types.RunState
	latest string
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*types.RunState)}
}

// CreateRun stores the initial run state and marks it latest.
func (s *MemoryStore) CreateRun(_ context.Context, initial *types.RunState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if initial.RunID == "" {
		initial.RunID = uuid.NewString()
	}
	s.runs[initial.RunID] = cloneRun(initial)
	s.latest = initial.RunID
	return initial.RunID, nil
}

// UpdateStage upserts one stage record.
func (s *MemoryStore) UpdateStage(_ context.Context, runID, stageKey string, rec *types.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if run.Stages == nil {
		run.Stages = make(map[string]*types.StageRecord)
	}
	clone := *rec
	run.Stages[stageKey] = &clone
	return nil
}

// UpdateComprehensive upserts the synthesis record.
func (s *MemoryStore) UpdateComprehensive(_ context.Context, runID string, rec *types.ComprehensiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	clone := *rec
	run.Comprehensive = &clone
	return nil
}

// GetRun returns a copy of the run's state.
func (s *MemoryStore) GetRun(_ context.Context, runID string) (*types.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// LatestRun returns a copy of the most recently created run.
func (s *MemoryStore) LatestRun(ctx context.Context) (*types.RunState, bool, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == "" {
		return nil, false, nil
	}
	run, err := s.GetRun(ctx, latest)
	if err != nil {
		return nil, false, nil
	}
	return run, true, nil
}

// FindReusableRun returns the latest run if it qualifies for resumption.
func (s *MemoryStore) FindReusableRun(ctx context.Context, maxAge time.Duration) (*types.RunState, bool, error) {
	run, ok, err := s.LatestRun(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	if !run.Reusable(time.Now(), maxAge) {
		return nil, false, nil
	}
	return run, true, nil
}

// FinalizeRun stores the complete run state.
func (s *MemoryStore) FinalizeRun(_ context.Context, run *types.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.RunID] = cloneRun(run)
	s.latest = run.RunID
	return nil
}

func cloneRun(run *types.RunState) *types.RunState {
	clone := *run
	clone.Stages = make(map[string]*types.StageRecord, len(run.Stages))
	for k, rec := range run.Stages {
		r := *rec
		clone.Stages[k] = &r
	}
	if run.Comprehensive != nil {
		c := *run.Comprehensive
		clone.Comprehensive = &c
	}
	return &clone
}
