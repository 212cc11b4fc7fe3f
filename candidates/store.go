package candidates

import (
	"context"
	"sync"
	"time"

	"marketbrief/types"
)

// Store supplies a superset of candidate records filtered by a time window.
// Read-only from the pipeline's perspective; result ordering is not
// significant (the selector re-sorts).
type Store interface {
	Query(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*types.Candidate, error)
}

// MemoryStore is an in-process candidate store for tests and seeded demos.
type MemoryStore struct {
	mu         sync.RWMutex
	candidates []*types.Candidate
}

// NewMemoryStore creates a store pre-loaded with the given candidates.
func NewMemoryStore(candidates ...*types.Candidate) *MemoryStore {
	return &MemoryStore{candidates: candidates}
}

// Add appends candidates to the store.
func (s *MemoryStore) Add(candidates ...*types.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, candidates...)
}

// Query returns candidates published within the window, up to limit.
func (s *MemoryStore) Query(_ context.Context, windowStart, windowEnd time.Time, limit int) ([]*types.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Candidate, 0, limit)
	for _, c := range s.candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !c.PublishedAt.IsZero() {
			if c.PublishedAt.Before(windowStart) || c.PublishedAt.After(windowEnd) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}
